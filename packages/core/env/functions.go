package env

import (
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Func computes the value of a {{name(args)}} expression.
type Func func(args []string) (any, error)

// Functions is a set of named functions available to templates.
type Functions map[string]Func

// DefaultFunctions returns the functions every resolver starts with.
func DefaultFunctions() Functions {
	return Functions{
		"now":          funcNow,
		"timestamp":    funcTimestamp,
		"uuid":         funcUUID,
		"random":       funcRandom,
		"randomString": funcRandomString,
		"date":         funcDate,
		"env":          funcEnv,
	}
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Call evaluates expr when it is a call to a known function.
func (f Functions) Call(expr string) (any, bool, error) {
	matches := funcCallPattern.FindStringSubmatch(expr)
	if matches == nil {
		return nil, false, nil
	}
	fn, ok := f[matches[1]]
	if !ok {
		return nil, false, nil
	}
	v, err := fn(splitArgs(matches[2]))
	if err != nil {
		return nil, true, fmt.Errorf("%s(): %w", matches[1], err)
	}
	return v, true, nil
}

// splitArgs splits a comma separated argument list, honoring quotes.
func splitArgs(s string) []string {
	var (
		args      []string
		current   strings.Builder
		quoteChar byte
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quoteChar == 0 && (ch == '"' || ch == '\''):
			quoteChar = ch
		case quoteChar != 0 && ch == quoteChar:
			quoteChar = 0
		case quoteChar == 0 && ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}
	return args
}

func funcNow([]string) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func funcTimestamp([]string) (any, error) {
	return time.Now().Unix(), nil
}

func funcUUID([]string) (any, error) {
	return uuid.NewString(), nil
}

func funcRandom(args []string) (any, error) {
	lo, hi := 0, 100
	if len(args) >= 2 {
		var err error
		if lo, err = strconv.Atoi(args[0]); err != nil {
			return nil, fmt.Errorf("min %q is not an integer", args[0])
		}
		if hi, err = strconv.Atoi(args[1]); err != nil {
			return nil, fmt.Errorf("max %q is not an integer", args[1])
		}
	}
	if hi < lo {
		return nil, fmt.Errorf("max %d is lower than min %d", hi, lo)
	}
	return rand.Intn(hi-lo+1) + lo, nil
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func funcRandomString(args []string) (any, error) {
	length := 16
	if len(args) >= 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return nil, fmt.Errorf("length %q is not a positive integer", args[0])
		}
		length = v
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = alphanumeric[rand.Intn(len(alphanumeric))]
	}
	return string(out), nil
}

func funcDate(args []string) (any, error) {
	format := "2006-01-02"
	if len(args) >= 1 {
		format = args[0]
	}
	return time.Now().UTC().Format(format), nil
}

func funcEnv(args []string) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("missing variable name")
	}
	v, ok := os.LookupEnv(args[0])
	if !ok && len(args) >= 2 {
		return args[1], nil
	}
	return v, nil
}
