package httpapp

import _ "embed"

//go:embed static/llms.txt
var llmsTxt []byte

//go:embed static/skill.md
var skillMd []byte
