package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"impactboard/api/internal/authpw"
	"impactboard/api/internal/blob"
	"impactboard/api/internal/config"
	"impactboard/api/internal/export"
	"impactboard/api/internal/history"
	"impactboard/api/internal/search"
	"impactboard/api/internal/store"
	"impactboard/api/internal/util"
)

// Mode labels accepted in modesOfAction; each maps onto one persisted flag.
const (
	ModeServe    = "Serve"
	ModeEducate  = "Educate"
	ModeAdvocate = "Advocate"
)

var validModes = map[string]struct{}{
	ModeServe:    {},
	ModeEducate:  {},
	ModeAdvocate: {},
}

type dataStore interface {
	Ping(context.Context) error
	GetProgramByName(context.Context, string) (store.Program, error)
	GetInitiative(context.Context, int64, string) (store.Initiative, error)
	ListInitiatives(context.Context, int64) ([]store.Initiative, error)
	InsertInitiative(context.Context, store.Initiative) (int64, error)
	UpdateInitiative(context.Context, store.Initiative) error
	DeleteInitiative(context.Context, int64) error
	DeleteMetrics(context.Context, int64) error
	InsertMetrics(context.Context, []store.Metric) error
	ListMetrics(context.Context, int64) ([]store.Metric, error)
	ListScoreboardMetrics(context.Context, int64) ([]store.Metric, error)
	UpsertProgramPassword(context.Context, int64, string) error
	GetProgramPasswordHash(context.Context, int64) (string, error)
}

type historyLog interface {
	RecordSnapshot(programID int64, initiativeName string, snapshot history.Snapshot, message string) error
	RecordRemoval(programID int64, initiativeName, message string) error
	History(programID int64, initiativeName string, limit int) ([]history.CommitInfo, error)
}

type sessionStore interface {
	SaveProgramSession(ctx context.Context, token string, programID int64, ttl time.Duration) error
	LookupProgramSession(ctx context.Context, token string) (int64, error)
	RevokeProgramSession(ctx context.Context, token string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	blobs     blob.Store
	passwords *authpw.Service
	history   historyLog      // may be nil
	search    *search.Service // may be nil
	exports   *export.Service
	sessions  sessionStore // may be nil

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(cfg config.Config, dataStore dataStore, blobs blob.Store, historyLog historyLog, searchService *search.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		blobs:     blobs,
		passwords: authpw.NewService(dataStore),
		history:   historyLog,
		search:    searchService,
		exports:   export.NewService(),
		locks:     make(map[string]*sync.Mutex),
	}
}

func NewWithSessionStore(cfg config.Config, dataStore dataStore, blobs blob.Store, historyLog historyLog, searchService *search.Service, sessions sessionStore) *Service {
	service := New(cfg, dataStore, blobs, historyLog, searchService)
	service.sessions = sessions
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap performs non-critical startup work.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// ImageUpload is a validated multipart image payload.
type ImageUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

// InitiativeInput carries the parsed fields of add/edit requests.
type InitiativeInput struct {
	ProgramName    string
	InitiativeName string
	Description    string
	ModesOfAction  []string
	Metrics        CategorizedMetrics
	Image          *ImageUpload
}

// ScoreboardInitiative is one entry in the public scoreboard response.
type ScoreboardInitiative struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	ImageURL    string                    `json:"imageUrl"`
	Metrics     map[Category][]LabelTotal `json:"metrics"`
}

// ScoreboardPayload is the fetch-scoreboard response body.
type ScoreboardPayload struct {
	Initiatives []ScoreboardInitiative `json:"initiatives"`
}

// InitiativeDetail is the fetch-initiative response body.
type InitiativeDetail struct {
	ProgramName    string                     `json:"programName"`
	InitiativeName string                     `json:"initiativeName"`
	Description    string                     `json:"description"`
	ModesOfAction  []string                   `json:"modesOfAction"`
	ImageURL       string                     `json:"imageUrl"`
	Metrics        map[Category][]MetricGroup `json:"metrics"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

// FetchScoreboard aggregates the public view of a program's initiatives.
func (s *Service) FetchScoreboard(ctx context.Context, programName string) (ScoreboardPayload, error) {
	program, err := s.resolveProgram(ctx, programName)
	if err != nil {
		return ScoreboardPayload{}, err
	}

	initiatives, err := s.store.ListInitiatives(ctx, program.ID)
	if err != nil {
		return ScoreboardPayload{}, fmt.Errorf("list initiatives: %w", err)
	}

	payload := ScoreboardPayload{Initiatives: make([]ScoreboardInitiative, 0, len(initiatives))}
	for _, initiative := range initiatives {
		rows, err := s.store.ListScoreboardMetrics(ctx, initiative.ID)
		if err != nil {
			return ScoreboardPayload{}, fmt.Errorf("list scoreboard metrics: %w", err)
		}
		payload.Initiatives = append(payload.Initiatives, ScoreboardInitiative{
			Name:        initiative.Name,
			Description: initiative.Description,
			ImageURL:    initiative.ImageURL,
			Metrics:     aggregateScoreboard(rows),
		})
	}
	return payload, nil
}

// FetchInitiative returns the full detail of one initiative, hidden
// metric rows included.
func (s *Service) FetchInitiative(ctx context.Context, programName, initiativeName string) (InitiativeDetail, error) {
	program, err := s.resolveProgram(ctx, programName)
	if err != nil {
		return InitiativeDetail{}, err
	}
	initiative, err := s.resolveInitiative(ctx, program.ID, initiativeName)
	if err != nil {
		return InitiativeDetail{}, err
	}

	rows, err := s.store.ListMetrics(ctx, initiative.ID)
	if err != nil {
		return InitiativeDetail{}, fmt.Errorf("list metrics: %w", err)
	}

	return InitiativeDetail{
		ProgramName:    program.Name,
		InitiativeName: initiative.Name,
		Description:    initiative.Description,
		ModesOfAction:  modesFromFlags(initiative),
		ImageURL:       initiative.ImageURL,
		Metrics:        groupMetrics(rows),
		UpdatedAt:      initiative.UpdatedAt,
	}, nil
}

// CreateInitiative creates an initiative together with its metric rows
// and image. Side effects are cleaned up best-effort on failure so the
// caller sees an all-or-nothing outcome.
func (s *Service) CreateInitiative(ctx context.Context, in InitiativeInput) error {
	if err := validateInput(in, true); err != nil {
		return err
	}

	program, err := s.resolveProgram(ctx, in.ProgramName)
	if err != nil {
		return err
	}

	unlock := s.lockInitiative(program.ID, in.InitiativeName)
	defer unlock()

	imageURL := ""
	uploadedKey := ""
	if in.Image != nil {
		key := blob.ObjectKey(in.Image.Filename)
		url, err := s.blobs.Upload(ctx, key, in.Image.MimeType, in.Image.Data)
		if err != nil {
			log.Printf("app: image upload failed: %v", err)
			return uploadError("Failed to upload image")
		}
		uploadedKey = key
		imageURL = url
	}

	initiativeID, err := s.store.InsertInitiative(ctx, store.Initiative{
		ProgramID:    program.ID,
		Name:         in.InitiativeName,
		Description:  in.Description,
		ImageURL:     imageURL,
		ModeServe:    hasMode(in.ModesOfAction, ModeServe),
		ModeEducate:  hasMode(in.ModesOfAction, ModeEducate),
		ModeAdvocate: hasMode(in.ModesOfAction, ModeAdvocate),
	})
	if err != nil {
		s.removeBlob(ctx, uploadedKey)
		log.Printf("app: insert initiative failed: %v", err)
		return insertError("Failed to insert initiative")
	}

	if err := s.replaceMetrics(ctx, initiativeID, in.Metrics); err != nil {
		// Undo the partial create.
		if deleteErr := s.store.DeleteInitiative(ctx, initiativeID); deleteErr != nil {
			log.Printf("app: rollback initiative %d failed: %v", initiativeID, deleteErr)
		}
		s.removeBlob(ctx, uploadedKey)
		return err
	}

	s.recordSnapshot(program.ID, initiativeID, in, imageURL, "Create initiative "+in.InitiativeName)
	s.indexInitiative(initiativeID, program.ID, in, imageURL)
	return nil
}

// EditInitiative updates an initiative's mutable fields and fully
// replaces its metric rows. A newly attached image replaces the stored
// blob; the swap is not rolled back if a later step fails.
func (s *Service) EditInitiative(ctx context.Context, in InitiativeInput) error {
	if err := validateInput(in, false); err != nil {
		return err
	}

	program, err := s.resolveProgram(ctx, in.ProgramName)
	if err != nil {
		return err
	}

	unlock := s.lockInitiative(program.ID, in.InitiativeName)
	defer unlock()

	// Resolved under the lock so a concurrent edit cannot hand us a
	// stale ImageURL and orphan its freshly uploaded blob.
	initiative, err := s.resolveInitiative(ctx, program.ID, in.InitiativeName)
	if err != nil {
		return err
	}

	imageURL := initiative.ImageURL
	if in.Image != nil {
		if oldKey := blob.KeyFromURL(initiative.ImageURL); oldKey != "" {
			s.removeBlob(ctx, oldKey)
		}
		key := blob.ObjectKey(in.Image.Filename)
		url, err := s.blobs.Upload(ctx, key, in.Image.MimeType, in.Image.Data)
		if err != nil {
			log.Printf("app: image upload failed: %v", err)
			return uploadError("Failed to upload image")
		}
		imageURL = url
	}

	initiative.Description = in.Description
	initiative.ImageURL = imageURL
	initiative.ModeServe = hasMode(in.ModesOfAction, ModeServe)
	initiative.ModeEducate = hasMode(in.ModesOfAction, ModeEducate)
	initiative.ModeAdvocate = hasMode(in.ModesOfAction, ModeAdvocate)
	if err := s.store.UpdateInitiative(ctx, initiative); err != nil {
		log.Printf("app: update initiative failed: %v", err)
		return updateError("Failed to update initiative")
	}

	if err := s.replaceMetrics(ctx, initiative.ID, in.Metrics); err != nil {
		return err
	}

	s.recordSnapshot(program.ID, initiative.ID, in, imageURL, "Edit initiative "+in.InitiativeName)
	s.indexInitiative(initiative.ID, program.ID, in, imageURL)
	return nil
}

// DeleteInitiative removes an initiative, its metric rows, and its
// image blob. A failed metric delete leaves the initiative intact.
func (s *Service) DeleteInitiative(ctx context.Context, programName, initiativeName string) error {
	if strings.TrimSpace(programName) == "" || strings.TrimSpace(initiativeName) == "" {
		return validationError("programName and initiativeName are required")
	}

	program, err := s.resolveProgram(ctx, programName)
	if err != nil {
		return err
	}

	unlock := s.lockInitiative(program.ID, initiativeName)
	defer unlock()

	initiative, err := s.resolveInitiative(ctx, program.ID, initiativeName)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMetrics(ctx, initiative.ID); err != nil {
		log.Printf("app: delete metrics failed: %v", err)
		return deleteError("Failed to delete metrics")
	}
	if err := s.store.DeleteInitiative(ctx, initiative.ID); err != nil {
		log.Printf("app: delete initiative failed: %v", err)
		return deleteError("Failed to delete initiative")
	}

	if key := blob.KeyFromURL(initiative.ImageURL); key != "" {
		s.removeBlob(ctx, key)
	}
	if s.history != nil {
		if err := s.history.RecordRemoval(program.ID, initiativeName, "Delete initiative "+initiativeName); err != nil {
			log.Printf("app: history removal failed: %v", err)
		}
	}
	if s.search != nil {
		s.search.DeleteInitiative(strconv.FormatInt(initiative.ID, 10))
	}
	return nil
}

// replaceMetrics swaps the full metric row set for an initiative. The
// delete and the insert are two store calls; a failure between them
// leaves the initiative with no metrics, which the caller surfaces as
// an error without retrying.
func (s *Service) replaceMetrics(ctx context.Context, initiativeID int64, metrics CategorizedMetrics) error {
	if err := s.store.DeleteMetrics(ctx, initiativeID); err != nil {
		log.Printf("app: clear metrics failed: %v", err)
		return syncError("Failed to clear old metrics")
	}
	rows := flattenMetrics(initiativeID, metrics, time.Now())
	if err := s.store.InsertMetrics(ctx, rows); err != nil {
		log.Printf("app: insert metrics failed: %v", err)
		return syncError("Failed to insert metrics")
	}
	return nil
}

// SetProgramPassword hashes and stores a program's access password.
func (s *Service) SetProgramPassword(ctx context.Context, programID int64, password string) error {
	if programID <= 0 || password == "" {
		return validationError("programId and password are required")
	}
	if err := s.passwords.SetPassword(ctx, programID, password); err != nil {
		log.Printf("app: set program password failed: %v", err)
		return serverError("Failed to set password")
	}
	return nil
}

// ProgramLogin verifies a program's password. When a session store is
// configured the returned token identifies the program on later calls;
// otherwise the token is empty.
func (s *Service) ProgramLogin(ctx context.Context, programID int64, password string) (string, error) {
	if programID <= 0 || password == "" {
		return "", validationError("programId and password are required")
	}

	if err := s.passwords.Verify(ctx, programID, password); err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return "", authError("Invalid program or password")
		}
		log.Printf("app: program login failed: %v", err)
		return "", serverError("Authentication failed")
	}

	if s.sessions == nil {
		return "", nil
	}
	token := util.NewID("sess")
	if err := s.sessions.SaveProgramSession(ctx, token, programID, s.cfg.SessionTTL); err != nil {
		// Login itself succeeded; the token is an optional extra.
		log.Printf("app: save session token failed: %v", err)
		return "", nil
	}
	return token, nil
}

// ProgramLogout revokes a session token. Unknown tokens are ignored.
func (s *Service) ProgramLogout(ctx context.Context, token string) {
	if s.sessions == nil || token == "" {
		return
	}
	if err := s.sessions.RevokeProgramSession(ctx, token); err != nil {
		log.Printf("app: revoke session token failed: %v", err)
	}
}

// SearchInitiatives runs a full-text search, optionally scoped to one
// program.
func (s *Service) SearchInitiatives(ctx context.Context, text, programName string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	var programID int64
	if strings.TrimSpace(programName) != "" {
		program, err := s.resolveProgram(ctx, programName)
		if err != nil {
			return search.Response{}, err
		}
		programID = program.ID
	}

	return s.search.Search(search.Query{
		Text:      text,
		ProgramID: programID,
		Limit:     limit,
		Offset:    offset,
	}), nil
}

// InitiativeHistory lists the recorded change log of one initiative.
func (s *Service) InitiativeHistory(ctx context.Context, programName, initiativeName string, limit int) ([]history.CommitInfo, error) {
	program, err := s.resolveProgram(ctx, programName)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolveInitiative(ctx, program.ID, initiativeName); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []history.CommitInfo{}, nil
	}

	items, err := s.history.History(program.ID, initiativeName, limit)
	if err != nil {
		log.Printf("app: read history failed: %v", err)
		return nil, serverError("Could not read initiative history")
	}
	return items, nil
}

// ExportScoreboard renders a program's scoreboard in the given format.
func (s *Service) ExportScoreboard(ctx context.Context, programName string, format export.Format) (*export.Result, error) {
	program, err := s.resolveProgram(ctx, programName)
	if err != nil {
		return nil, err
	}

	initiatives, err := s.store.ListInitiatives(ctx, program.ID)
	if err != nil {
		return nil, fmt.Errorf("list initiatives: %w", err)
	}

	data := export.ScoreboardData{
		ProgramName: program.Name,
		GeneratedAt: time.Now(),
	}
	for _, initiative := range initiatives {
		rows, err := s.store.ListScoreboardMetrics(ctx, initiative.ID)
		if err != nil {
			return nil, fmt.Errorf("list scoreboard metrics: %w", err)
		}
		aggregated := aggregateScoreboard(rows)

		summary := export.InitiativeSummary{
			Name:        initiative.Name,
			Description: initiative.Description,
			ImageURL:    initiative.ImageURL,
		}
		for _, category := range categoryOrder {
			totals := make([]export.LabelTotal, 0, len(aggregated[category]))
			for _, total := range aggregated[category] {
				totals = append(totals, export.LabelTotal{Label: total.Label, Value: total.Value})
			}
			summary.Categories = append(summary.Categories, export.CategoryTotals{
				Name:   string(category),
				Totals: totals,
			})
		}
		data.Initiatives = append(data.Initiatives, summary)
	}

	result, err := s.exports.Export(data, format)
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return nil, validationError(fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		log.Printf("app: export scoreboard failed: %v", err)
		return nil, serverError("Could not export scoreboard")
	}
	return result, nil
}

func (s *Service) resolveProgram(ctx context.Context, programName string) (store.Program, error) {
	name := strings.TrimSpace(programName)
	if name == "" {
		return store.Program{}, validationError("programName is required")
	}
	program, err := s.store.GetProgramByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Program{}, notFoundError("Invalid programName")
	}
	if err != nil {
		return store.Program{}, fmt.Errorf("resolve program: %w", err)
	}
	return program, nil
}

func (s *Service) resolveInitiative(ctx context.Context, programID int64, initiativeName string) (store.Initiative, error) {
	name := strings.TrimSpace(initiativeName)
	if name == "" {
		return store.Initiative{}, validationError("initiativeName is required")
	}
	initiative, err := s.store.GetInitiative(ctx, programID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Initiative{}, notFoundError("Invalid initiativeName for given program")
	}
	if err != nil {
		return store.Initiative{}, fmt.Errorf("resolve initiative: %w", err)
	}
	return initiative, nil
}

// removeBlob is best-effort cleanup; failures are logged, never returned.
func (s *Service) removeBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Remove(ctx, key); err != nil {
		log.Printf("app: remove blob %s failed: %v", key, err)
	}
}

func (s *Service) recordSnapshot(programID, initiativeID int64, in InitiativeInput, imageURL, message string) {
	if s.history == nil {
		return
	}
	snapshot := history.Snapshot{
		Name:          in.InitiativeName,
		Description:   in.Description,
		ImageURL:      imageURL,
		ModesOfAction: in.ModesOfAction,
		Metrics:       groupMetrics(flattenMetrics(initiativeID, in.Metrics, time.Now())),
	}
	if err := s.history.RecordSnapshot(programID, in.InitiativeName, snapshot, message); err != nil {
		log.Printf("app: history snapshot failed: %v", err)
	}
}

func (s *Service) indexInitiative(initiativeID, programID int64, in InitiativeInput, imageURL string) {
	if s.search == nil {
		return
	}
	s.search.IndexInitiative(search.InitiativeRecord{
		ID:          strconv.FormatInt(initiativeID, 10),
		ProgramID:   programID,
		Name:        in.InitiativeName,
		Description: in.Description,
		ImageURL:    imageURL,
	})
}

// lockInitiative serializes mutations on one (program, initiative)
// pair so concurrent edits cannot interleave their delete-then-insert
// metric sequences. Entries are never evicted; the map is bounded by
// the distinct pairs mutated since startup.
func (s *Service) lockInitiative(programID int64, initiativeName string) func() {
	key := fmt.Sprintf("%d/%s", programID, initiativeName)
	s.lockMu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func validateInput(in InitiativeInput, requireImage bool) error {
	if strings.TrimSpace(in.ProgramName) == "" ||
		strings.TrimSpace(in.InitiativeName) == "" ||
		strings.TrimSpace(in.Description) == "" ||
		in.ModesOfAction == nil ||
		in.Metrics == nil {
		return validationError("All fields are required")
	}
	if requireImage && in.Image == nil {
		return validationError("An image is required")
	}
	for _, mode := range in.ModesOfAction {
		if _, ok := validModes[mode]; !ok {
			return validationError(fmt.Sprintf("unknown mode of action %q", mode))
		}
	}
	return validateMetrics(in.Metrics)
}

func hasMode(modes []string, mode string) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}

func modesFromFlags(initiative store.Initiative) []string {
	modes := make([]string, 0, 3)
	if initiative.ModeServe {
		modes = append(modes, ModeServe)
	}
	if initiative.ModeEducate {
		modes = append(modes, ModeEducate)
	}
	if initiative.ModeAdvocate {
		modes = append(modes, ModeAdvocate)
	}
	return modes
}
