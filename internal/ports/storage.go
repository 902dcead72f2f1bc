package ports

import (
	"context"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// RiskOffStore da acceso de solo lectura a los registros de risk-off.
type RiskOffStore interface {
	// RiskOff devuelve el registro del instrumento; found=false si no existe.
	RiskOff(ctx context.Context, marketID string) (rec domain.RiskOffRecord, found bool, err error)
}

// Journal persiste fills y merges para el reporte.
type Journal interface {
	RecordFill(ctx context.Context, fill domain.Fill) error
	RecordMerge(ctx context.Context, result domain.MergeResult) error
}
