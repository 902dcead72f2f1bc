package ports

import "github.com/alejandrodnm/polymaker/internal/domain"

// StatusNotifier presenta el estado del engine al usuario.
type StatusNotifier interface {
	PrintStatus(rows []domain.TokenStatus)
}
