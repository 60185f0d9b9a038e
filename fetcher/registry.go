package fetcher

import (
	"fmt"

	"ewintr.nl/vidl/model"
)

// Sources maps a service to the source that reads its channels.
type Sources map[model.Service]ChannelSource

func (s Sources) Get(service model.Service) (ChannelSource, error) {
	src, ok := s[service]
	if !ok || src == nil {
		return nil, fmt.Errorf("%s: %w", service, ErrUnsupportedService)
	}
	return src, nil
}
