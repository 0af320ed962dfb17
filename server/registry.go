package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/brain-cockpit/cockpit/alignment"
	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/dataset"
)

// FeaturesDataset is a loaded surface map dataset.
type FeaturesDataset struct {
	*dataset.Resolver

	ID          string
	Config      *DatasetConfig
	Description *dataset.Description

	// Descriptions are the validated contrast descriptions, if configured.
	Descriptions json.RawMessage
}

// AlignmentDataset is a loaded alignment dataset.
type AlignmentDataset struct {
	*alignment.Dataset

	ID     string
	Config *DatasetConfig
}

// Registry holds every dataset served.  It is never modified once built:
// reloads build a new registry and swap it in.
type Registry struct {
	Created    time.Time
	Features   map[string]*FeaturesDataset
	Alignments map[string]*AlignmentDataset

	// configuration the registry was built from
	config *tomlConfig
}

func (reg *Registry) feature(id string) (*FeaturesDataset, bool) {
	if reg == nil {
		return nil, false
	}
	d, found := reg.Features[id]
	return d, found
}

func (reg *Registry) alignment(id string) (*AlignmentDataset, bool) {
	if reg == nil {
		return nil, false
	}
	d, found := reg.Alignments[id]
	return d, found
}

func loadFeatures(ctx context.Context, loader *dataset.Loader, id string, dc *DatasetConfig) (*FeaturesDataset, error) {
	desc, err := dataset.ReadDescription(dc.absPath)
	if err != nil {
		return nil, err
	}
	md := dataset.ParseMetadata(desc)
	store, err := loader.Load(ctx, desc)
	if err != nil {
		return nil, err
	}
	d := &FeaturesDataset{
		Resolver:    dataset.NewResolver(md, store),
		ID:          id,
		Config:      dc,
		Description: desc,
	}
	if dc.absDescriptions != "" {
		if d.Descriptions, err = dataset.ReadDescriptions(dc.absDescriptions); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// buildRegistry loads every configured dataset.  Datasets that can't be
// loaded are logged and left out; only cancellation is an error.
func buildRegistry(ctx context.Context, c *tomlConfig, loader *dataset.Loader) (*Registry, error) {
	timedLog := cockpit.NewTimeLog()
	reg := &Registry{
		Created:    time.Now(),
		Features:   make(map[string]*FeaturesDataset),
		Alignments: make(map[string]*AlignmentDataset),
		config:     c,
	}
	features := c.features()
	for _, id := range sortedIDs(features) {
		d, err := loadFeatures(ctx, loader, id, features[id])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			cockpit.Errorf("Skipping dataset %q: %v\n", id, err)
			continue
		}
		cockpit.Infof("Dataset %q: %s\n", id, d.Store())
		reg.Features[id] = d
	}
	config := alignment.Config{DataRoot: c.Server.DataRoot, Workers: c.Server.Workers}
	for _, id := range sortedIDs(c.Alignments.Datasets) {
		dc := c.Alignments.Datasets[id]
		d, err := alignment.Read(ctx, dc.absPath, config)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			cockpit.Errorf("Skipping alignment dataset %q: %v\n", id, err)
			continue
		}
		reg.Alignments[id] = &AlignmentDataset{Dataset: d, ID: id, Config: dc}
	}
	timedLog.Infof("Loaded %d of %d datasets and %d of %d alignment datasets",
		len(reg.Features), len(features), len(reg.Alignments), len(c.Alignments.Datasets))
	return reg, nil
}
