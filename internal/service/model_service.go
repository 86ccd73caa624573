package service

import (
	"context"
	"fmt"

	"gptme-server/internal/domain"
	"gptme-server/internal/repository"
)

type ModelCatalogue interface {
	Models() []domain.ModelInfo
	Lookup(id string) (domain.ModelInfo, bool)
	Default() domain.ModelInfo
}

type ModelService struct {
	userRepo  repository.UserRepository
	catalogue ModelCatalogue
	publisher Publisher
}

func NewModelService(userRepo repository.UserRepository, catalogue ModelCatalogue, publisher Publisher) *ModelService {
	return &ModelService{
		userRepo:  userRepo,
		catalogue: catalogue,
		publisher: publisherOrNoop(publisher),
	}
}

func (s *ModelService) List(ctx context.Context, userID string) (*domain.ModelsResponse, error) {
	selected, err := s.Resolve(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	return &domain.ModelsResponse{
		Models:   s.catalogue.Models(),
		Selected: selected.ID,
	}, nil
}

func (s *ModelService) Select(ctx context.Context, userID, model string) error {
	if _, ok := s.catalogue.Lookup(model); !ok {
		return ErrUnknownModel
	}

	if err := s.userRepo.UpdateSelectedModel(ctx, userID, model); err != nil {
		if repository.IsNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to select model: %w", err)
	}

	s.publisher.PublishToUser(userID, EventModelSelected, ModelEvent{Model: model})
	return nil
}

// Resolve picks the model for one call: the requested model when it is in
// the catalogue, else the account's selection, else the catalogue default.
func (s *ModelService) Resolve(ctx context.Context, userID, requested string) (domain.ModelInfo, error) {
	if m, ok := s.catalogue.Lookup(requested); ok {
		return m, nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil && !repository.IsNotFound(err) {
		return domain.ModelInfo{}, fmt.Errorf("failed to load selected model: %w", err)
	}
	if user != nil {
		if m, ok := s.catalogue.Lookup(user.SelectedModel); ok {
			return m, nil
		}
	}

	return s.catalogue.Default(), nil
}
