package service

import (
	"context"
	"errors"

	"minicorr/internal/models"
	"minicorr/internal/repository"
)

const maxSampleLimit = 10000

var ErrInvalidLimit = errors.New("limit must be between 0 and 10000")

type SampleService struct {
	repo repository.SampleRepo
}

func NewSampleService(repo repository.SampleRepo) *SampleService {
	return &SampleService{repo: repo}
}

func (s *SampleService) List(ctx context.Context, f SampleFilter) ([]models.TemperatureSample, error) {
	if f.Limit < 0 || f.Limit > maxSampleLimit {
		return nil, ErrInvalidLimit
	}
	from, to, err := normalizeRange(f.From, f.To)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, from, to, f.Limit)
}
