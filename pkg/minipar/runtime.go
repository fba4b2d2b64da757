package minipar

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"
	"unicode"
)

// LoadEnvironment loads all builtins (functions and constants) into the
// executor's global frame.
func (ex *Executor) LoadEnvironment() {
	// console
	ex.LoadFunc("print", mpPrint)
	ex.LoadFunc("output", mpPrint)
	ex.LoadFunc("input", mpInput)

	// conversions and strings
	ex.LoadFunc("to_number", mpToNumber)
	ex.LoadFunc("to_string", mpToString)
	ex.LoadFunc("to_bool", mpToBool)
	ex.LoadFunc("len", mpLen)
	ex.LoadFunc("isalpha", mpIsAlpha)
	ex.LoadFunc("isnum", mpIsNum)

	// channels
	ex.LoadFunc("send", mpSend)
	ex.LoadFunc("receive", mpReceive)
	ex.LoadFunc("close", mpClose)

	ex.LoadFunc("sleep", mpSleep)

	// math
	ex.LoadFunc("exp", unaryMath("exp", math.Exp))
	ex.LoadFunc("log", unaryMath("log", math.Log))
	ex.LoadFunc("sqrt", unaryMath("sqrt", math.Sqrt))
	ex.LoadFunc("sin", unaryMath("sin", math.Sin))
	ex.LoadFunc("cos", unaryMath("cos", math.Cos))
	ex.LoadFunc("tan", unaryMath("tan", math.Tan))
	ex.LoadFunc("floor", roundingMath("floor", math.Floor))
	ex.LoadFunc("ceil", roundingMath("ceil", math.Ceil))
	ex.LoadFunc("round", roundingMath("round", math.Round))
	ex.LoadFunc("pow", mpPow)
	ex.LoadFunc("abs", mpAbs)

	ex.scope.SetGlobal("pi", FloatValue(math.Pi))
	ex.scope.SetGlobal("e", FloatValue(math.E))
}

func numberArg(fnName string, in []Value, i int) (Value, error) {
	num, ok := toNumeric(in[i])
	if !ok {
		return nil, Err{
			reason:  ErrRuntime,
			message: fmt.Sprintf("%s() takes a number argument, got %s %q", fnName, in[i].Type(), in[i]),
			cause:   ErrOperand,
		}
	}
	return num, nil
}

func arity(fnName string, in []Value, n int, what string) error {
	if len(in) != n {
		return Err{
			reason:  ErrRuntime,
			message: fmt.Sprintf("%s() takes %s, got %d", fnName, what, len(in)),
		}
	}
	return nil
}

func mpPrint(ex *Executor, in []Value) (Value, error) {
	parts := make([]string, len(in))
	for i, v := range in {
		parts[i] = v.String()
	}
	if err := ex.write(strings.Join(parts, " ") + "\n"); err != nil {
		return nil, Err{reason: ErrSystem, message: fmt.Sprintf("print() could not write: %s", err), cause: err}
	}
	return Null, nil
}

// mpInput reads one line of console input and types it as an int, a
// float or a string, in that order.
func mpInput(ex *Executor, in []Value) (Value, error) {
	if len(in) > 1 {
		return nil, Err{reason: ErrRuntime, message: "input() takes at most 1 prompt argument"}
	}
	if len(in) == 1 {
		if err := ex.write(in[0].String()); err != nil {
			return nil, Err{reason: ErrSystem, message: fmt.Sprintf("input() could not write prompt: %s", err), cause: err}
		}
	}

	line, err := ex.in.ReadLine()
	if err == io.EOF {
		return StringValue(""), nil
	}
	if err != nil {
		return nil, Err{reason: ErrSystem, message: fmt.Sprintf("input() could not read: %s", err), cause: err}
	}
	return sniffInput(line), nil
}

func mpToNumber(ex *Executor, in []Value) (Value, error) {
	if err := arity("to_number", in, 1, "1 argument"); err != nil {
		return nil, err
	}
	if s, isString := in[0].(StringValue); isString {
		if num, ok := parseNumber(strings.TrimSpace(string(s))); ok {
			return num, nil
		}
	}
	return numberArg("to_number", in, 0)
}

func mpToString(ex *Executor, in []Value) (Value, error) {
	if err := arity("to_string", in, 1, "1 argument"); err != nil {
		return nil, err
	}
	return StringValue(in[0].String()), nil
}

func mpToBool(ex *Executor, in []Value) (Value, error) {
	if err := arity("to_bool", in, 1, "1 argument"); err != nil {
		return nil, err
	}
	if s, isString := in[0].(StringValue); isString {
		switch strings.ToLower(strings.TrimSpace(string(s))) {
		case "true":
			return BoolValue(true), nil
		case "false", "0":
			return BoolValue(false), nil
		}
	}
	return BoolValue(truthy(in[0])), nil
}

func mpLen(ex *Executor, in []Value) (Value, error) {
	if err := arity("len", in, 1, "1 string argument"); err != nil {
		return nil, err
	}
	s, isString := in[0].(StringValue)
	if !isString {
		return nil, Err{
			reason:  ErrRuntime,
			message: fmt.Sprintf("len() takes a string argument, got %s %s", in[0].Type(), in[0]),
			cause:   ErrOperand,
		}
	}
	return IntValue(runeCount(s)), nil
}

// classify reports whether s is non-empty and every rune satisfies pred.
func classify(fnName string, in []Value, pred func(rune) bool) (Value, error) {
	if err := arity(fnName, in, 1, "1 argument"); err != nil {
		return nil, err
	}
	s := in[0].String()
	if s == "" {
		return BoolValue(false), nil
	}
	for _, r := range s {
		if !pred(r) {
			return BoolValue(false), nil
		}
	}
	return BoolValue(true), nil
}

func mpIsAlpha(ex *Executor, in []Value) (Value, error) {
	return classify("isalpha", in, unicode.IsLetter)
}

func mpIsNum(ex *Executor, in []Value) (Value, error) {
	return classify("isnum", in, unicode.IsDigit)
}

func mpSleep(ex *Executor, in []Value) (Value, error) {
	if err := arity("sleep", in, 1, "1 number argument"); err != nil {
		return nil, err
	}
	secs, err := numberArg("sleep", in, 0)
	if err != nil {
		return nil, err
	}
	if s := asFloat(secs); s > 0 {
		time.Sleep(time.Duration(s * float64(time.Second)))
	}
	return Null, nil
}

func unaryMath(fnName string, fn func(float64) float64) NativeFunc {
	return func(ex *Executor, in []Value) (Value, error) {
		if err := arity(fnName, in, 1, "1 number argument"); err != nil {
			return nil, err
		}
		num, err := numberArg(fnName, in, 0)
		if err != nil {
			return nil, err
		}
		return FloatValue(fn(asFloat(num))), nil
	}
}

// roundingMath wraps functions whose result is integral.
func roundingMath(fnName string, fn func(float64) float64) NativeFunc {
	return func(ex *Executor, in []Value) (Value, error) {
		if err := arity(fnName, in, 1, "1 number argument"); err != nil {
			return nil, err
		}
		num, err := numberArg(fnName, in, 0)
		if err != nil {
			return nil, err
		}
		if i, isInt := num.(IntValue); isInt {
			return i, nil
		}
		return demote(fn(asFloat(num))), nil
	}
}

func mpPow(ex *Executor, in []Value) (Value, error) {
	if err := arity("pow", in, 2, "2 number arguments"); err != nil {
		return nil, err
	}
	base, err := numberArg("pow", in, 0)
	if err != nil {
		return nil, err
	}
	exponent, err := numberArg("pow", in, 1)
	if err != nil {
		return nil, err
	}

	result := math.Pow(asFloat(base), asFloat(exponent))
	_, baseIsInt := base.(IntValue)
	if e, expIsInt := exponent.(IntValue); baseIsInt && expIsInt && e >= 0 {
		return demote(result), nil
	}
	return FloatValue(result), nil
}

func mpAbs(ex *Executor, in []Value) (Value, error) {
	if err := arity("abs", in, 1, "1 number argument"); err != nil {
		return nil, err
	}
	num, err := numberArg("abs", in, 0)
	if err != nil {
		return nil, err
	}
	if i, isInt := num.(IntValue); isInt {
		if i < 0 {
			return -i, nil
		}
		return i, nil
	}
	return FloatValue(math.Abs(asFloat(num))), nil
}
