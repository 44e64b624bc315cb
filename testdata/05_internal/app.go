package app

import "example.com/testmod/internal/secret"

type Session struct {
	Token secret.Token
}
