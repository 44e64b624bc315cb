package secret

type Token struct {
	Value string
	salt  string
}

func (t Token) String() string { return t.Value + t.salt }
