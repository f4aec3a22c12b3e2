package quote

import (
	"context"

	"golang.org/x/time/rate"

	"stockpane/internal/domain"
)

// Limited wraps src so that calls are spread to at most perMinute per
// minute, with a burst of one. A non-positive perMinute returns src as is.
func Limited(src Source, perMinute int) Source {
	if perMinute <= 0 {
		return src
	}
	return &limitedSource{
		src:     src,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

type limitedSource struct {
	src     Source
	limiter *rate.Limiter
}

func (l *limitedSource) Fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return domain.Quote{Symbol: symbol}, domain.NewFetchError(symbol, domain.ReasonNetwork, err)
	}
	return l.src.Fetch(ctx, symbol)
}
