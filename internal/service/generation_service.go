package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
	"unicode/utf8"

	"imgforge/internal/model"
	"imgforge/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MaxPromptLength = 1000

	defaultListLimit = 20
	maxListLimit     = 100

	defaultFinishTimeout = 30 * time.Second

	placeholderModel = "placeholder"
)

// GenerateInput is one image-to-image request.
type GenerateInput struct {
	UserID        string
	Prompt        string
	PresetID      string
	Size          string
	Image         []byte
	ImageMIMEType string
}

// GenerationResult is a completed attempt (real or placeholder) and the caller's quota after it.
// Durable is false when the record could not be written and the result is an in-memory stand-in.
type GenerationResult struct {
	Generation *model.Generation
	Quota      QuotaSnapshot
	Durable    bool
}

// GenerationPage is one page of a user's generations with the paging actually applied.
type GenerationPage struct {
	Generations []model.Generation
	Limit       int
	Offset      int
}

type GenerationService interface {
	Generate(ctx context.Context, in GenerateInput) (*GenerationResult, error)
	// Retry re-runs a failed generation from the provider call onwards.
	Retry(ctx context.Context, userID, generationID string) (*GenerationResult, error)
	GetGeneration(ctx context.Context, userID, generationID string) (*model.Generation, error)
	ListGenerations(ctx context.Context, userID string, limit, offset int) (*GenerationPage, error)
	GetQuota(ctx context.Context, userID string) (*QuotaSnapshot, error)
}

// GenerationDeps are the collaborators of the generation service. Provider may be nil, in which
// case generation requests fail with ErrProviderUnavailable. FinishTimeout bounds the work after
// the provider call returns: output upload, record write, quota charge and event.
type GenerationDeps struct {
	Users           repository.UserRepository
	Generations     repository.GenerationRepository
	Quotas          QuotaService
	Prompts         PromptResolver
	Provider        ImageProvider
	Uploads         UploadService
	Store           ObjectStore
	Events          EventPublisher
	ProviderTimeout time.Duration
	FinishTimeout   time.Duration
	Now             func() time.Time
}

type generationService struct {
	users           repository.UserRepository
	generations     repository.GenerationRepository
	quotas          QuotaService
	prompts         PromptResolver
	provider        ImageProvider
	uploads         UploadService
	store           ObjectStore
	events          EventPublisher
	providerTimeout time.Duration
	finishTimeout   time.Duration
	now             func() time.Time
	logger          zerolog.Logger
}

func NewGenerationService(deps GenerationDeps, logger zerolog.Logger) GenerationService {
	s := &generationService{
		users:           deps.Users,
		generations:     deps.Generations,
		quotas:          deps.Quotas,
		prompts:         deps.Prompts,
		provider:        deps.Provider,
		uploads:         deps.Uploads,
		store:           deps.Store,
		events:          deps.Events,
		providerTimeout: deps.ProviderTimeout,
		finishTimeout:   deps.FinishTimeout,
		now:             deps.Now,
		logger:          logger.With().Str("service", "GenerationService").Logger(),
	}
	if s.providerTimeout <= 0 {
		s.providerTimeout = 60 * time.Second
	}
	if s.finishTimeout <= 0 {
		s.finishTimeout = defaultFinishTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.events == nil {
		s.events = NopEventPublisher{}
	}
	return s
}

// attemptInput is what a provider call needs beyond the record itself.
type attemptInput struct {
	image    []byte
	mimeType string
	width    int
	height   int
}

func (s *generationService) Generate(ctx context.Context, in GenerateInput) (*GenerationResult, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}
	if len(in.Image) == 0 {
		return nil, &ValidationError{Field: "file", Message: "an image file is required"}
	}
	width, height, size, err := ParseImageSize(in.Size)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.requireQuota(ctx, user); err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}

	upload, err := s.uploads.Receive(ctx, user.UserID, in.Image, in.ImageMIMEType)
	if err != nil {
		return nil, err
	}
	resolved := s.prompts.Resolve(prompt, in.PresetID, upload.URL)

	now := s.now()
	gen := &model.Generation{
		UserID:           user.UserID,
		OriginalImageURL: &upload.URL,
		OriginalImageKey: upload.Key,
		Prompt:           resolved.Text,
		PresetUsed:       resolved.PresetUsed,
		Status:           model.GenerationProcessing,
		Metadata: model.GenerationMetadata{
			OutputSize:    size,
			InputMimeType: upload.MIMEType,
		},
		ProcessingStartTime: now,
	}
	durable := true
	if err := s.generations.CreateGeneration(ctx, gen); err != nil {
		durable = false
		if gen.ID == "" {
			gen.ID = uuid.NewString()
		}
		gen.CreatedAt, gen.UpdatedAt = now, now
		s.logger.Error().
			Err(err).
			Bool("durability_gap", true).
			Str("user_id", user.UserID).
			Str("generation_id", gen.ID).
			Msg("Failed to persist generation, continuing with in-memory record")
	}

	return s.attempt(ctx, user, gen, attemptInput{
		image:    upload.Data,
		mimeType: upload.MIMEType,
		width:    width,
		height:   height,
	}, durable)
}

func (s *generationService) Retry(ctx context.Context, userID, generationID string) (*GenerationResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	gen, err := s.generations.FindGeneration(ctx, generationID, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading generation: %w", err)
	}
	if gen == nil {
		return nil, ErrGenerationNotFound
	}
	if gen.Status != model.GenerationFailed {
		return nil, ErrInvalidGenerationState
	}
	if err := s.requireQuota(ctx, user); err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	if gen.OriginalImageKey == "" {
		return nil, fmt.Errorf("%w: original image is missing", ErrInvalidGenerationState)
	}

	data, err := s.store.Get(ctx, gen.OriginalImageKey)
	if err != nil {
		return nil, fmt.Errorf("loading original image: %w", err)
	}
	input, err := InspectImage(data, gen.Metadata.InputMimeType, 0)
	if err != nil {
		return nil, fmt.Errorf("original image of generation %s is unusable: %w", gen.ID, err)
	}
	width, height, _, err := ParseImageSize(gen.Metadata.OutputSize)
	if err != nil {
		width, height, _, _ = ParseImageSize(DefaultImageSize)
	}

	reset, err := s.generations.ResetForRetry(ctx, gen.ID, user.UserID, s.now())
	if errors.Is(err, repository.ErrGenerationStateConflict) {
		return nil, ErrInvalidGenerationState
	}
	if err != nil {
		return nil, fmt.Errorf("resetting generation: %w", err)
	}
	s.logger.Info().
		Str("user_id", user.UserID).
		Str("generation_id", reset.ID).
		Int("retry_count", reset.Metadata.RetryCount).
		Msg("Retrying generation")

	return s.attempt(ctx, user, reset, attemptInput{
		image:    input.Data,
		mimeType: input.MIMEType,
		width:    width,
		height:   height,
	}, true)
}

// attempt calls the provider for a processing record and resolves it to a terminal state.
// It runs detached from ctx cancellation so a produced image is always recorded and charged.
func (s *generationService) attempt(ctx context.Context, user *model.User, gen *model.Generation, in attemptInput, durable bool) (*GenerationResult, error) {
	detached := context.WithoutCancel(ctx)
	log := s.logger.With().Str("user_id", user.UserID).Str("generation_id", gen.ID).Logger()

	meta := gen.Metadata
	meta.Width, meta.Height = in.width, in.height

	callCtx, cancel := context.WithTimeout(detached, s.providerTimeout)
	res, err := s.provider.Generate(callCtx, ImageRequest{
		Prompt:        gen.Prompt,
		Image:         in.image,
		ImageMIMEType: in.mimeType,
		Width:         in.width,
		Height:        in.height,
	})
	cancel()

	ctx, finish := context.WithTimeout(detached, s.finishTimeout)
	defer finish()

	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			if !errors.Is(err, context.DeadlineExceeded) {
				return s.fail(ctx, log, user, gen, meta, model.ErrorCodeProvider, "image generation failed", err, durable)
			}
			pe = &ProviderError{Kind: ProviderErrorTransient, Message: "provider call timed out", Err: err}
		}
		if pe.Kind == ProviderErrorTransient {
			return s.completeWithPlaceholder(ctx, log, user, gen, meta, pe, durable)
		}
		return s.fail(ctx, log, user, gen, meta, pe.errorCode(), pe.Message, pe, durable)
	}

	if isEcho(res, in.image, gen.OriginalImageURL) {
		return s.fail(ctx, log, user, gen, meta, model.ErrorCodeEchoedOutput,
			"the provider returned the uploaded image unchanged", ErrEchoedOutput, durable)
	}

	meta.Model = res.Model
	if meta.Model == "" {
		meta.Model = s.provider.Name()
	}
	var outputURL string
	switch {
	case len(res.Data) > 0:
		mimeType := res.MIMEType
		if mimeType == "" {
			mimeType = placeholderMIMEType
		}
		outputURL, err = s.store.Put(ctx, outputKey(gen, mimeType), res.Data, mimeType)
		if err != nil {
			return s.fail(ctx, log, user, gen, meta, model.ErrorCodeStorage, "the generated image could not be stored", err, durable)
		}
		meta.MimeType = mimeType
		meta.SizeBytes = int64(len(res.Data))
		if cfg, _, derr := image.DecodeConfig(bytes.NewReader(res.Data)); derr == nil {
			meta.Width, meta.Height = cfg.Width, cfg.Height
		}
	case res.URL != "":
		outputURL = res.URL
		meta.MimeType = res.MIMEType
	default:
		pe := &ProviderError{Kind: ProviderErrorMalformed, Message: "provider returned no image"}
		return s.fail(ctx, log, user, gen, meta, pe.errorCode(), pe.Message, pe, durable)
	}

	return s.complete(ctx, log, user, gen, outputURL, false, meta, durable)
}

func (s *generationService) completeWithPlaceholder(ctx context.Context, log zerolog.Logger, user *model.User, gen *model.Generation, meta model.GenerationMetadata, cause *ProviderError, durable bool) (*GenerationResult, error) {
	log.Warn().Err(cause).Msg("Provider unreachable, delivering placeholder")

	data, err := SynthesizePlaceholder(meta.Width, meta.Height, gen.ID+"|"+gen.Prompt)
	if err != nil {
		return s.fail(ctx, log, user, gen, meta, model.ErrorCodeProvider, "image generation failed", err, durable)
	}
	outputURL, err := s.store.Put(ctx, outputKey(gen, placeholderMIMEType), data, placeholderMIMEType)
	if err != nil {
		return s.fail(ctx, log, user, gen, meta, model.ErrorCodeStorage, "the placeholder image could not be stored", err, durable)
	}
	meta.MimeType = placeholderMIMEType
	meta.SizeBytes = int64(len(data))
	meta.Model = placeholderModel
	return s.complete(ctx, log, user, gen, outputURL, true, meta, durable)
}

func (s *generationService) complete(ctx context.Context, log zerolog.Logger, user *model.User, gen *model.Generation, outputURL string, placeholder bool, meta model.GenerationMetadata, durable bool) (*GenerationResult, error) {
	end := s.now()
	meta.ProcessingTimeMs = end.Sub(gen.ProcessingStartTime).Milliseconds()
	committed, durable, err := s.commit(ctx, log, gen, model.GenerationOutcome{
		Status:            model.GenerationCompleted,
		GeneratedImageURL: &outputURL,
		IsPlaceholder:     placeholder,
		Metadata:          meta,
		EndTime:           end,
	}, durable)
	if err != nil {
		return s.superseded(ctx, log, user, gen, committed, err)
	}
	gen = committed

	quota := s.charge(ctx, log, user)
	s.events.GenerationFinished(ctx, gen, durable)

	log.Info().
		Bool("is_placeholder", placeholder).
		Int64("processing_time_ms", meta.ProcessingTimeMs).
		Int("quota_used", quota.Used).
		Msg("Generation completed")
	return &GenerationResult{Generation: gen, Quota: quota, Durable: durable}, nil
}

func (s *generationService) fail(ctx context.Context, log zerolog.Logger, user *model.User, gen *model.Generation, meta model.GenerationMetadata, code, message string, cause error, durable bool) (*GenerationResult, error) {
	end := s.now()
	meta.ProcessingTimeMs = end.Sub(gen.ProcessingStartTime).Milliseconds()
	committed, durable, err := s.commit(ctx, log, gen, model.GenerationOutcome{
		Status:       model.GenerationFailed,
		ErrorMessage: &message,
		ErrorCode:    &code,
		Metadata:     meta,
		EndTime:      end,
	}, durable)
	if err != nil {
		return s.superseded(ctx, log, user, gen, committed, err)
	}
	gen = committed
	s.events.GenerationFinished(ctx, gen, durable)

	log.Warn().Err(cause).Str("error_code", code).Msg("Generation failed")
	return nil, &GenerationFailedError{
		Generation: gen,
		Quota:      s.snapshot(ctx, log, user),
		Code:       code,
		Err:        cause,
	}
}

// commit writes the terminal outcome. When the write fails the outcome is applied to the
// in-memory record instead and the result is reported as not durable. A record that is no
// longer processing is left alone and returned as stored, with ErrGenerationSuperseded.
func (s *generationService) commit(ctx context.Context, log zerolog.Logger, gen *model.Generation, out model.GenerationOutcome, durable bool) (*model.Generation, bool, error) {
	if durable {
		stored, err := s.generations.UpdateGenerationTerminal(ctx, gen.ID, out)
		if err == nil {
			return stored, true, nil
		}
		if errors.Is(err, repository.ErrGenerationStateConflict) {
			current, ferr := s.generations.FindGeneration(ctx, gen.ID, gen.UserID)
			if ferr != nil {
				log.Error().Err(ferr).Msg("Failed to reload superseded generation")
			}
			return current, true, fmt.Errorf("committing generation %s: %w", gen.ID, ErrGenerationSuperseded)
		}
		log.Error().
			Err(err).
			Bool("durability_gap", true).
			Str("status", string(out.Status)).
			Msg("Failed to persist generation outcome, returning in-memory record")
	}
	applyOutcome(gen, out)
	return gen, false, nil
}

// superseded ends an attempt whose record another writer, usually the stale sweeper, resolved
// first. The stored state stands and nothing is charged.
func (s *generationService) superseded(ctx context.Context, log zerolog.Logger, user *model.User, gen, stored *model.Generation, err error) (*GenerationResult, error) {
	code := model.ErrorCodeTimeout
	if stored != nil {
		gen = stored
		if stored.ErrorCode != nil {
			code = *stored.ErrorCode
		}
	}
	log.Error().
		Err(err).
		Str("stored_status", string(gen.Status)).
		Msg("Generation was resolved elsewhere, discarding this attempt's outcome")
	return nil, &GenerationFailedError{
		Generation: gen,
		Quota:      s.snapshot(ctx, log, user),
		Code:       code,
		Err:        err,
	}
}

// charge increments usage for a delivered result. A rejected increment means another request
// took the last slot meanwhile; the result stands and is not charged beyond the limit.
func (s *generationService) charge(ctx context.Context, log zerolog.Logger, user *model.User) QuotaSnapshot {
	q, err := s.quotas.IncrementUsage(ctx, user.UserID, user.Tier)
	if err == nil {
		return NewQuotaSnapshot(*q)
	}
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		log.Warn().Bool("quota_overrun_avoided", true).Msg("Quota filled during generation, result not charged")
		return NewQuotaSnapshot(qe.Quota)
	}
	log.Error().Err(err).Msg("Failed to charge quota")
	return s.snapshot(ctx, log, user)
}

func (s *generationService) snapshot(ctx context.Context, log zerolog.Logger, user *model.User) QuotaSnapshot {
	q, err := s.quotas.GetOrCreateTodayQuota(ctx, user.UserID, user.Tier)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read quota")
		return QuotaSnapshot{}
	}
	return NewQuotaSnapshot(*q)
}

func (s *generationService) GetGeneration(ctx context.Context, userID, generationID string) (*model.Generation, error) {
	gen, err := s.generations.FindGeneration(ctx, generationID, userID)
	if err != nil {
		return nil, fmt.Errorf("loading generation: %w", err)
	}
	if gen == nil {
		return nil, ErrGenerationNotFound
	}
	return gen, nil
}

func (s *generationService) ListGenerations(ctx context.Context, userID string, limit, offset int) (*GenerationPage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	gens, err := s.generations.ListGenerationsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}
	return &GenerationPage{Generations: gens, Limit: limit, Offset: offset}, nil
}

func (s *generationService) GetQuota(ctx context.Context, userID string) (*QuotaSnapshot, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	q, err := s.quotas.GetOrCreateTodayQuota(ctx, user.UserID, user.Tier)
	if err != nil {
		return nil, fmt.Errorf("loading quota: %w", err)
	}
	snap := NewQuotaSnapshot(*q)
	return &snap, nil
}

func (s *generationService) loadUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if u == nil || !u.IsActive {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// requireQuota fails with *QuotaExceededError before any provider cost is incurred.
func (s *generationService) requireQuota(ctx context.Context, user *model.User) error {
	q, err := s.quotas.GetOrCreateTodayQuota(ctx, user.UserID, user.Tier)
	if err != nil {
		return fmt.Errorf("loading quota: %w", err)
	}
	if q.GenerationsUsed >= q.GenerationsLimit {
		return &QuotaExceededError{Quota: *q}
	}
	return nil
}

func validatePrompt(prompt string) error {
	if prompt == "" {
		return &ValidationError{Field: "prompt", Message: "prompt is required"}
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptLength {
		return &ValidationError{Field: "prompt", Message: fmt.Sprintf("prompt must be at most %d characters, got %d", MaxPromptLength, n)}
	}
	return nil
}

// isEcho reports whether the provider handed back the input instead of a transformation.
func isEcho(res *ImageResult, input []byte, originalURL *string) bool {
	if len(res.Data) > 0 && len(input) > 0 && bytes.Equal(res.Data, input) {
		return true
	}
	return res.URL != "" && originalURL != nil && res.URL == *originalURL
}

func outputKey(gen *model.Generation, mimeType string) string {
	ext, ok := AllowedImageTypes[mimeType]
	if !ok {
		ext = "png"
	}
	return fmt.Sprintf("generations/%s/%s.%s", gen.UserID, gen.ID, ext)
}

func applyOutcome(gen *model.Generation, out model.GenerationOutcome) {
	end := out.EndTime
	gen.Status = out.Status
	gen.GeneratedImageURL = out.GeneratedImageURL
	gen.IsPlaceholder = out.IsPlaceholder
	gen.ErrorMessage = out.ErrorMessage
	gen.ErrorCode = out.ErrorCode
	gen.Metadata = out.Metadata
	gen.ProcessingEndTime = &end
	gen.UpdatedAt = end
}
