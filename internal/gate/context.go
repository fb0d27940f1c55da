package gate

import "context"

type admissionCtxKey struct{}

// WithAdmission stores the admission on the request context for handlers.
func WithAdmission(ctx context.Context, adm *Admission) context.Context {
	return context.WithValue(ctx, admissionCtxKey{}, adm)
}

// AdmissionFromContext returns the admission attached by the gate middleware.
func AdmissionFromContext(ctx context.Context) (*Admission, bool) {
	adm, ok := ctx.Value(admissionCtxKey{}).(*Admission)
	return adm, ok
}
