package forms

import "embed"

//go:embed schemas
var embedded embed.FS
