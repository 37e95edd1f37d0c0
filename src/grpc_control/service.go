package grpc_control

import (
	"context"
	"fmt"
	"sync"

	"multisig-observer/src/config"
	datasource "multisig-observer/src/data_source"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SourceFactory builds the source for a newly added watch.
type SourceFactory func(watch models.MWatchConfig) interfaces.IDataSource

// ControlService implements ControlServer on top of the source manager.
// Edits are written back to the config file at ConfigPath.
type ControlService struct {
	UnimplementedControlServer
	Config     *config.Config
	Manager    *datasource.MultiSourceManager
	ConfigPath string
	Logger     *logger.Logger
	NewSource  SourceFactory

	// Optional collaborators
	Expander  interfaces.IAccountExpander
	Exchanger interfaces.IDataExchanger

	mu sync.Mutex // guards Config.Watches
}

// NewControlService creates a new instance of ControlService
func NewControlService(
	cfg *config.Config,
	manager *datasource.MultiSourceManager,
	cfgPath string,
	log *logger.Logger,
	factory SourceFactory,
) *ControlService {
	if log == nil {
		log = logger.NewLogger(cfg, "GrpcControl")
	}
	return &ControlService{
		Config:     cfg,
		Manager:    manager,
		ConfigPath: cfgPath,
		Logger:     log,
		NewSource:  factory,
	}
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListWatches(ctx context.Context, req *Empty) (*ListWatchesResponse, error) {
	return &ListWatchesResponse{Watches: s.statuses()}, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) AddWatch(ctx context.Context, req *AddWatchRequest) (*WatchControlResponse, error) {
	watch := models.MWatchConfig{
		Name:       req.Name,
		Domain:     req.Domain,
		ServiceURL: req.ServiceURL,
		Accounts:   req.Accounts,
	}
	if err := config.ValidateWatch(watch); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if _, err := s.Manager.GetSource(req.Name); err == nil {
		return nil, status.Errorf(codes.AlreadyExists, "watch %s already exists", req.Name)
	}

	accounts, err := s.expand(req.Name, req.Accounts)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "expanding accounts: %v", err)
	}
	running := watch
	running.Accounts = accounts

	if err := s.Manager.AddSource(s.NewSource(running)); err != nil {
		s.Logger.Error("Failed to add watch: %v", err)
		return &WatchControlResponse{
			Success:      false,
			Message:      fmt.Sprintf("Failed to add watch: %v", err),
			CurrentState: "stopped",
		}, nil
	}

	s.mu.Lock()
	s.Config.Watches = append(s.Config.Watches, watch)
	s.save()
	s.mu.Unlock()

	return &WatchControlResponse{
		Success:      true,
		Message:      fmt.Sprintf("Added watch %s", req.Name),
		CurrentState: s.currentState(req.Name),
	}, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) RemoveWatch(ctx context.Context, req *WatchControlRequest) (*WatchControlResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	if err := s.Manager.RemoveSource(req.Name); err != nil {
		return nil, status.Errorf(codes.NotFound, "watch %s not found", req.Name)
	}
	if s.Exchanger != nil {
		s.Exchanger.RemoveWatch(req.Name)
	}

	s.mu.Lock()
	watches := []models.MWatchConfig{}
	for _, w := range s.Config.Watches {
		if w.Name != req.Name {
			watches = append(watches, w)
		}
	}
	s.Config.Watches = watches
	s.save()
	s.mu.Unlock()

	return &WatchControlResponse{
		Success:      true,
		Message:      fmt.Sprintf("Removed watch %s", req.Name),
		CurrentState: "removed",
	}, nil
}

// -----------------------------------------------------------------------------

// UpdateAccounts replaces the accounts of a watch, re-subscribing if it runs.
func (s *ControlService) UpdateAccounts(ctx context.Context, req *UpdateAccountsRequest) (*UpdateAccountsResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if len(req.Accounts) == 0 {
		return nil, status.Error(codes.InvalidArgument, "accounts list cannot be empty")
	}
	if _, err := s.Manager.GetSource(req.Name); err != nil {
		return nil, status.Errorf(codes.NotFound, "watch %s not found", req.Name)
	}

	accounts, err := s.expand(req.Name, req.Accounts)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "expanding accounts: %v", err)
	}

	if err := s.Manager.UpdateAccounts(req.Name, accounts); err != nil {
		s.Logger.Error("gRPC: Failed to update watch %s: %v", req.Name, err)
		return &UpdateAccountsResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to update watch: %v", err),
		}, nil
	}

	s.mu.Lock()
	for i, w := range s.Config.Watches {
		if w.Name == req.Name {
			s.Config.Watches[i].Accounts = append([]string{}, req.Accounts...)
			s.save()
			break
		}
	}
	s.mu.Unlock()

	s.Logger.Info("gRPC: UpdateAccounts success for %s. Count: %d", req.Name, len(accounts))
	return &UpdateAccountsResponse{
		Success:      true,
		Message:      fmt.Sprintf("Watch %s now follows %d accounts", req.Name, len(accounts)),
		AccountCount: int32(len(accounts)),
	}, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) StartWatch(ctx context.Context, req *WatchControlRequest) (*WatchControlResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	if err := s.Manager.StartSource(req.Name); err != nil {
		return &WatchControlResponse{Success: false, Message: err.Error(), CurrentState: s.currentState(req.Name)}, nil
	}
	return &WatchControlResponse{Success: true, Message: "Watch started", CurrentState: s.currentState(req.Name)}, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) StopWatch(ctx context.Context, req *WatchControlRequest) (*WatchControlResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	if err := s.Manager.StopSource(req.Name); err != nil {
		return &WatchControlResponse{Success: false, Message: err.Error(), CurrentState: s.currentState(req.Name)}, nil
	}
	return &WatchControlResponse{Success: true, Message: "Watch stopped", CurrentState: "stopped"}, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetStatus(ctx context.Context, req *Empty) (*StatusResponse, error) {
	return &StatusResponse{Name: s.Config.Name, Watches: s.statuses()}, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *ControlService) statuses() []*WatchStatus {
	sources := s.Manager.GetAllSources()
	out := make([]*WatchStatus, 0, len(sources))
	for _, src := range sources {
		out = append(out, s.statusOf(src))
	}
	return out
}

func (s *ControlService) statusOf(src interfaces.IDataSource) *WatchStatus {
	watch := src.Watch()
	st := &WatchStatus{
		Name:         src.Name(),
		Domain:       watch.Domain,
		ServiceURL:   src.ServiceURL(),
		StreamState:  src.StreamState(),
		IsRunning:    src.IsRunning(),
		AccountCount: int32(len(watch.Accounts)),
	}
	if state, err := s.Manager.State(src.Name()); err == nil {
		st.RequestCount = int32(len(state.Requests))
	}
	return st
}

func (s *ControlService) currentState(name string) string {
	src, err := s.Manager.GetSource(name)
	if err != nil {
		return "unknown"
	}
	if !src.IsRunning() {
		return "stopped"
	}
	return "running"
}

func (s *ControlService) expand(watch string, entries []string) ([]string, error) {
	if s.Expander == nil {
		return entries, nil
	}
	return s.Expander.ExpandAccounts(watch, entries)
}

// save must be called with mu held.
func (s *ControlService) save() {
	if s.ConfigPath == "" {
		return
	}
	if err := s.Config.Save(s.ConfigPath); err != nil {
		s.Logger.Error("Failed to save config: %v", err)
	}
}
