package app

import "context"

type CheckService interface {
	Check(ctx context.Context, req CheckRequest) (*CheckReport, error)
}
