package parser

import "github.com/google/uuid"

func newSuggestionID() uuid.UUID { return uuid.New() }
