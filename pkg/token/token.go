package token

type Type int

const (
	EOF Type = iota
	LineMark
	Ident
	Number
	Proc
	EndProc
	If
	EndIf
	While
	EndWhile
	For
	EndFor
	LParen
	RParen
	LBracket
	RBracket
	Comma
	Colon
	Plus
	Minus
	Star
	Slash
	Rem
	And
	Or
	Xor
	Store
	Word
	Byte
	Hash
	Eq
	Lt
)

var KeywordMap = map[string]Type{
	"proc":     Proc,
	"endproc":  EndProc,
	"if":       If,
	"endif":    EndIf,
	"while":    While,
	"endwhile": EndWhile,
	"for":      For,
	"endfor":   EndFor,
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

var symbols = map[Type]string{
	EOF:      "end of file",
	LineMark: "end of line",
	Ident:    "identifier",
	Number:   "number",
	LParen:   "(",
	RParen:   ")",
	LBracket: "[",
	RBracket: "]",
	Comma:    ",",
	Colon:    ":",
	Plus:     "+",
	Minus:    "-",
	Star:     "*",
	Slash:    "/",
	Rem:      "%",
	And:      "&",
	Or:       "|",
	Xor:      "^",
	Store:    ">",
	Word:     "!",
	Byte:     "?",
	Hash:     "#",
	Eq:       "=",
	Lt:       "<",
}

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range symbols {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string { return TypeStrings[t] }

// IsKeyword reports whether t is one of the reserved words.
func (t Type) IsKeyword() bool { return t >= Proc && t <= EndFor }

// IsOperator reports whether t combines a term into the accumulator.
func (t Type) IsOperator() bool { return t >= Plus && t <= Xor }

// IsRelation reports whether t is a structure test relation.
func (t Type) IsRelation() bool { return t >= Hash && t <= Lt }

type Token struct {
	Type   Type
	Value  string
	Line   int
	Column int
	Len    int
}

// Text returns the source spelling of the token.
func (t Token) Text() string {
	if t.Value != "" {
		return t.Value
	}
	return t.Type.String()
}

// IsGlobal reports whether an identifier carries the global sigil.
func IsGlobal(name string) bool { return len(name) > 0 && name[0] == '$' }
