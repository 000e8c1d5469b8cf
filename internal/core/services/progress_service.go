package services

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

// Progress is a point-in-time view of a sweep.
type Progress struct {
	Completed int
	Total     int
	Current   string
	Elapsed   time.Duration
}

// ProgressService periodically logs how far a sweep has come.
type ProgressService struct {
	scheduler      *gocron.Scheduler
	mutex          sync.Mutex
	reportInterval time.Duration
	isRunning      bool
	stopCh         chan struct{}

	completed int
	total     int
	current   string
	startedAt time.Time
}

func NewProgressService(interval time.Duration) *ProgressService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ProgressService{
		reportInterval: interval,
		stopCh:         make(chan struct{}),
		startedAt:      time.Now(),
	}
}

func (s *ProgressService) Reset(total int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.total = total
	s.completed = 0
	s.current = ""
	s.startedAt = time.Now()
}

func (s *ProgressService) Begin(config string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.current = config
}

func (s *ProgressService) Complete() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.completed++
	s.current = ""
}

func (s *ProgressService) Snapshot() Progress {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return Progress{
		Completed: s.completed,
		Total:     s.total,
		Current:   s.current,
		Elapsed:   time.Since(s.startedAt),
	}
}

func (s *ProgressService) report() {
	p := s.Snapshot()
	log := logger.WithComponent("progress_service")
	log.Info().
		Int("completed", p.Completed).
		Int("total", p.Total).
		Str("current", p.Current).
		Dur("elapsed", p.Elapsed.Round(time.Second)).
		Msg("Sweep progress")
}

func (s *ProgressService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return nil
	}

	log := logger.WithComponent("progress_service")
	s.scheduler = gocron.NewScheduler(time.UTC)
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh

	job, err := s.scheduler.Every(s.reportInterval).WaitForSchedule().Do(func() {
		select {
		case <-stopCh:
			return
		default:
			s.report()
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to schedule progress report")
		return err
	}

	s.scheduler.StartAsync()
	s.isRunning = true

	log.Debug().
		Dur("interval", s.reportInterval).
		Str("next_run", job.NextRun().String()).
		Msg("Progress reporting started")

	return nil
}

// Stop halts reporting. The scheduler is stopped outside the lock because a
// report in flight needs it.
func (s *ProgressService) Stop() {
	s.mutex.Lock()
	if !s.isRunning {
		s.mutex.Unlock()
		return
	}
	close(s.stopCh)
	scheduler := s.scheduler
	s.scheduler = nil
	s.isRunning = false
	s.mutex.Unlock()

	if scheduler != nil {
		scheduler.Stop()
	}
}

func (s *ProgressService) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.isRunning
}
