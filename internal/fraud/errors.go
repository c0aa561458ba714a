package fraud

import "errors"

// 进入死信队列的原因
const (
	ReasonMissingEventType   = "MissingEventType"
	ReasonDeserialization    = "DeserializationError"
	ReasonPaymentNotFound    = "PaymentNotFound"
	ReasonMaxRetriesExceeded = "MaxRetriesExceeded"
)

// PermanentError 重试也不会成功的错误，直接进入死信队列
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
