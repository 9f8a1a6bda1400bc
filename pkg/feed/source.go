package feed

import (
	"context"
	"fmt"
	"os"

	"urbanmove/pkg/bods"
)

// Source yields a SIRI-VM document on each poll.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Name() string
}

// FileSource re-reads a snapshot from disk on every poll.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SIRI snapshot: %w", err)
	}
	return data, nil
}

func (s FileSource) Name() string { return "file:" + s.Path }

// BODSSource fetches live vehicle monitoring from the Bus Open Data Service.
type BODSSource struct {
	Client  *bods.Client
	LineRef string
}

func NewBODSSource(apiKey, datasetID, lineRef string) *BODSSource {
	return &BODSSource{Client: bods.NewClient(apiKey, datasetID), LineRef: lineRef}
}

func (s *BODSSource) Fetch(ctx context.Context) ([]byte, error) {
	return s.Client.FetchVehicleMonitoring(ctx, s.LineRef)
}

func (s *BODSSource) Name() string { return "bods:" + s.LineRef }
