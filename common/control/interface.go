package control

import E "github.com/sagernet/sing-reactor/common/exceptions"

// Func adjusts a raw socket descriptor before it is bound or connected.
type Func = func(fd int) error

func Append(oldFunc Func, newFunc Func) Func {
	if oldFunc == nil {
		return newFunc
	} else if newFunc == nil {
		return oldFunc
	}
	return func(fd int) error {
		if err := oldFunc(fd); err != nil {
			return err
		}
		return newFunc(fd)
	}
}

// Apply runs every non-nil function in order and stops at the first error.
func Apply(fd int, funcs ...Func) error {
	for _, f := range funcs {
		if f == nil {
			continue
		}
		if err := f(fd); err != nil {
			return err
		}
	}
	return nil
}

func wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return E.Cause(err, message)
}
