package ioformat

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/repcrec/internal/ops"
)

func TestParsesEveryOperationKind(t *testing.T) {
	input := strings.Join([]string{
		"begin(T1)",
		"beginRO(T2)",
		"R(T1,x3)",
		"W(T1, x3, 17)",
		"end(T1)",
		"fail(4)",
		"recover(4)",
		"dump()",
	}, "\n")

	p := NewParser(strings.NewReader(input))

	want := []ops.Operation{
		ops.Begin{Txn: 1},
		ops.BeginRO{Txn: 2},
		ops.Read{Txn: 1, Var: 3},
		ops.Write{Txn: 1, Var: 3, Value: 17},
		ops.End{Txn: 1},
		ops.Fail{Site: 4},
		ops.Recover{Site: 4},
		ops.Dump{},
	}

	for i, w := range want {
		op, line, err := p.Next()
		assert.NoError(t, err, "line %d (%q)", i, line)
		assert.Equal(t, w, op)
	}

	_, _, err := p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSkipsBlankAndCommentLines(t *testing.T) {
	input := "\n// a comment\n# also a comment\nbegin(T1)\n"
	p := NewParser(strings.NewReader(input))

	op, _, err := p.Next()
	assert.NoError(t, err)
	assert.Equal(t, ops.Begin{Txn: 1}, op)

	_, _, err = p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestMalformedLineWrapsSentinel(t *testing.T) {
	p := NewParser(strings.NewReader("not an operation"))
	_, line, err := p.Next()
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedLine)
	assert.Equal(t, "not an operation", line)
}
