package content

import _ "embed"

// Default content shipped in the binary. Deployments can override any
// document via [LoadDir]; validation rules apply either way.

//go:embed triggers.yaml
var defaultTriggers string

//go:embed responses.yaml
var defaultResponses string

//go:embed questions.yaml
var defaultQuestions string
