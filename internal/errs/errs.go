// Package errs carries typed errors through the request pipeline. An error is
// built with E from any combination of Kind, Op and an underlying error, and
// callers branch on the kind with KindIs instead of matching strings.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Op names the operation that produced an error, such as "nl2sql.Translate".
type Op string

type Kind uint8

const (
	Other Kind = iota
	Config
	Validation
	Timeout
	ProviderQuota
	ProviderNetwork
	ProviderOther
	ExecutionConflict
	ExecutionNotFound
	Internal
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "configuration error"
	case Validation:
		return "invalid input"
	case Timeout:
		return "timed out"
	case ProviderQuota:
		return "provider quota exceeded"
	case ProviderNetwork:
		return "provider network failure"
	case ProviderOther:
		return "provider failure"
	case ExecutionConflict:
		return "already exists"
	case ExecutionNotFound:
		return "not found"
	case Internal:
		return "internal error"
	}
	return "other error"
}

type Error struct {
	Op   Op
	Kind Kind
	Err  error
}

// E builds an *Error from its arguments. A string argument becomes the
// underlying error. When no kind is given and the wrapped error is itself an
// *Error, its kind is inherited.
func E(args ...any) error {
	if len(args) == 0 {
		panic("call to errs.E with no arguments")
	}

	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Err = errors.New(a)
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case nil:
		default:
			return fmt.Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}

	var prev *Error
	if errors.As(e.Err, &prev) && e.Kind == Other {
		e.Kind = prev.Kind
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(string(e.Op))
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	} else if e.Kind != Other {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Kind.String())
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

func KindIs(kind Kind, err error) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the innermost error text without the op prefixes.
func Message(err error) string {
	for {
		var e *Error
		if !errors.As(err, &e) || e.Err == nil {
			break
		}
		err = e.Err
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
