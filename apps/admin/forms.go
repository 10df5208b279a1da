package main

import (
	"fmt"
	"os"

	"github.com/trezcool/academia/core/forms"
)

// checkForms loads every schema under dir the way the API loads its catalogue.
func (cli *commandLine) checkForms(dir string) error {
	reg, err := forms.Load(os.DirFS(dir))
	if err != nil {
		return err
	}
	for _, schema := range reg.List() {
		fmt.Fprintf(cli.out, "%s: %q, %d sections (jump: %s, submit: %s)\n",
			schema.Name, schema.Title, schema.Len(), schema.JumpPolicy(), schema.SubmitPolicy())
	}
	return nil
}
