package core

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for record timestamps and audit entries.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
			s.clockSet = true
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer wrapping each operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit sink for mutating operations.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithReservationPolicy selects how completion treats an application's reservation.
func WithReservationPolicy(policy ReservationPolicy) ServiceOption {
	return func(s *Service) {
		if policy.Valid() {
			s.policy = policy
		}
	}
}

// WithLocker serialises mutating operations across processes.
func WithLocker(locker Locker, key string) ServiceOption {
	return func(s *Service) {
		if locker != nil {
			s.locker = locker
			if key != "" {
				s.lockKey = key
			}
		}
	}
}
