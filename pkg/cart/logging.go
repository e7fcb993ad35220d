package cart

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records engine-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one cart operation and its disposition.
type OperationLog struct {
	Operation string
	ItemID    ItemID
	ProductID ProductID
	Delta     int64
	Status    string
	Error     error
	AtUnixUTC int64
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithClock overrides the time source used for operation log entries.
func WithClock(now func() int64) ServiceOption {
	return func(service *Service) {
		if now != nil {
			service.nowFn = now
		}
	}
}
