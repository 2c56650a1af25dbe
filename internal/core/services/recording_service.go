package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/monitoring"
	"huddle/pkg/circuitbreaker"
	"huddle/pkg/tracing"
	"huddle/pkg/utils"

	"go.uber.org/zap"
)

type recordingSession struct {
	roomID   domain.RoomID
	clientID domain.ClientID

	fileName  string
	sink      *os.File
	startedAt time.Time

	mu         sync.Mutex
	chunkCount int
	closed     bool
	failed     bool
}

// write appends a chunk to the sink. The sink is single-writer: only the
// owning connection's read loop calls this, so the session mutex exists to
// fence writes against a concurrent close, not against other writers.
func (s *recordingSession) write(chunk []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.failed {
		return s.chunkCount, nil
	}
	if _, err := s.sink.Write(chunk); err != nil {
		s.failed = true
		s.sink.Close()
		s.closed = true
		return s.chunkCount, err
	}
	s.chunkCount++
	return s.chunkCount, nil
}

func (s *recordingSession) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.sink.Close(); err != nil {
		s.failed = true
		return err
	}
	return nil
}

func (s *recordingSession) stats() (chunks int, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkCount, s.failed
}

type roomRecording struct {
	roomID    domain.RoomID
	startedBy domain.ClientID
	startedAt time.Time
	sessions  map[domain.ClientID]*recordingSession

	// Sessions whose client disconnected before stop. Their files still
	// belong to the recording's output.
	finished []*recordingSession
}

// RecordingService coordinates server-side capture of per-participant audio.
// It owns every sink; rooms and clients are referenced by identifier only.
type RecordingService struct {
	recordings map[domain.RoomID]*roomRecording
	mu         sync.Mutex

	// Monotonic per-process session counter. Timestamps alone cannot tell
	// apart two sessions opened for the same client in the same millisecond
	// (disconnect and immediate reconnect).
	sessionSeq uint64

	dir          string
	fileExt      string
	mixer        ports.Mixer // nil disables merging
	mergeTimeout time.Duration

	// A run of merge failures (missing or broken ffmpeg) stops further
	// attempts for a while; recordings keep their per-participant files.
	mergeBreaker *circuitbreaker.Breaker

	metrics *monitoring.Collector
	logger  *zap.SugaredLogger
}

func NewRecordingService(
	dir string,
	fileExt string,
	mixer ports.Mixer,
	mergeTimeout time.Duration,
	metrics *monitoring.Collector,
	logger *zap.SugaredLogger,
) (*RecordingService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings dir %s: %w", dir, err)
	}
	return &RecordingService{
		recordings:   make(map[domain.RoomID]*roomRecording),
		dir:          dir,
		fileExt:      fileExt,
		mixer:        mixer,
		mergeTimeout: mergeTimeout,
		mergeBreaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		metrics:      metrics,
		logger:       logger,
	}, nil
}

func (r *RecordingService) Start(roomID domain.RoomID, initiatorID domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.recordings[roomID]; exists {
		return domain.ErrAlreadyRecording
	}

	r.recordings[roomID] = &roomRecording{
		roomID:    roomID,
		startedBy: initiatorID,
		startedAt: utils.Now(),
		sessions:  make(map[domain.ClientID]*recordingSession),
	}

	if r.metrics != nil {
		r.metrics.RecordRecordingStarted()
	}
	r.logger.Infow("recording started", "room_id", roomID, "started_by", initiatorID)
	return nil
}

func (r *RecordingService) AddChunk(roomID domain.RoomID, clientID domain.ClientID, chunk []byte) bool {
	r.mu.Lock()
	rec, exists := r.recordings[roomID]
	if !exists {
		r.mu.Unlock()
		return false
	}

	session, ok := rec.sessions[clientID]
	if !ok {
		var err error
		session, err = r.openSession(roomID, clientID)
		if err != nil {
			r.mu.Unlock()
			r.logger.Errorw("failed to open recording session",
				"room_id", roomID, "client_id", clientID, "error", err)
			return false
		}
		rec.sessions[clientID] = session
	}
	r.mu.Unlock()

	n, err := session.write(chunk)
	if err != nil {
		r.logger.Errorw("sink write failed, session excluded from output",
			"room_id", roomID, "client_id", clientID, "file", session.fileName, "error", err)
		return false
	}

	if r.metrics != nil {
		r.metrics.RecordChunk(len(chunk))
	}
	if n > 0 && n%100 == 0 {
		r.logger.Debugw("chunk progress", "room_id", roomID, "client_id", clientID, "chunks", n)
	}
	return true
}

// openSession is called with r.mu held.
func (r *RecordingService) openSession(roomID domain.RoomID, clientID domain.ClientID) (*recordingSession, error) {
	roomDir := filepath.Join(r.dir, string(roomID))
	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		return nil, err
	}

	now := utils.Now()
	r.sessionSeq++
	fileName := fmt.Sprintf("%s_%s_%d-%d.%s",
		roomID, utils.ShortID(string(clientID), 8), now.UnixMilli(), r.sessionSeq, r.fileExt)

	sink, err := os.OpenFile(filepath.Join(roomDir, fileName),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	r.logger.Infow("recording session opened",
		"room_id", roomID, "client_id", clientID, "file", fileName)
	return &recordingSession{
		roomID:    roomID,
		clientID:  clientID,
		fileName:  fileName,
		sink:      sink,
		startedAt: now,
	}, nil
}

func (r *RecordingService) Stop(ctx context.Context, roomID domain.RoomID) []string {
	r.mu.Lock()
	rec, exists := r.recordings[roomID]
	if !exists {
		r.mu.Unlock()
		return []string{}
	}
	delete(r.recordings, roomID)
	r.mu.Unlock()

	ctx, span := tracing.TraceRecordingOperation(ctx, "stop", string(roomID))
	defer span.End()

	all := make([]*recordingSession, 0, len(rec.sessions)+len(rec.finished))
	for _, session := range rec.sessions {
		all = append(all, session)
	}
	all = append(all, rec.finished...)

	// Finished sessions are closed here too: a disconnect may still have its
	// close in flight, and close is idempotent, so awaiting it again is the
	// fence that guarantees every sink is shut before files are reported.
	var wg sync.WaitGroup
	for _, session := range all {
		wg.Add(1)
		go func(s *recordingSession) {
			defer wg.Done()
			if err := s.close(); err != nil {
				r.logger.Errorw("failed to close sink",
					"room_id", roomID, "client_id", s.clientID, "file", s.fileName, "error", err)
			}
		}(session)
	}
	wg.Wait()

	files := make([]string, 0, len(all))
	for _, session := range all {
		chunks, failed := session.stats()
		if failed {
			continue
		}
		if chunks == 0 {
			// An open sink that never received data leaves an empty file behind.
			os.Remove(filepath.Join(r.dir, string(roomID), session.fileName))
			continue
		}
		files = append(files, session.fileName)
	}

	if r.metrics != nil {
		r.metrics.RecordRecordingStopped()
	}
	span.SetAttributes(tracing.FilesKey.Int(len(files)))
	r.logger.Infow("recording stopped",
		"room_id", roomID, "files", files,
		"duration", utils.FormatDuration(utils.Since(rec.startedAt)))

	if r.mixer != nil && len(files) >= 2 {
		go r.mergeRoom(roomID, files)
	}
	return files
}

// mergeRoom is best-effort: any failure leaves the per-participant files as
// the final result.
func (r *RecordingService) mergeRoom(roomID domain.RoomID, inputs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.mergeTimeout)
	defer cancel()

	ctx, span := tracing.TraceRecordingOperation(ctx, "merge", string(roomID))
	defer span.End()

	start := utils.Now()
	var merged string
	err := r.mergeBreaker.Execute(func() error {
		var mergeErr error
		merged, mergeErr = r.mixer.Merge(ctx, roomID, inputs)
		return mergeErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		r.logger.Warnw("merge skipped after repeated failures", "room_id", roomID)
		return
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		if r.metrics != nil {
			r.metrics.RecordMerge("failure", utils.Since(start))
		}
		r.logger.Warnw("no merge produced", "room_id", roomID, "error", err)
		return
	}

	if r.metrics != nil {
		r.metrics.RecordMerge("success", utils.Since(start))
	}
	r.logger.Infow("merge completed", "room_id", roomID, "file", merged)
}

func (r *RecordingService) HandleClientLeft(roomID domain.RoomID, clientID domain.ClientID) {
	r.mu.Lock()
	rec, exists := r.recordings[roomID]
	if !exists {
		r.mu.Unlock()
		return
	}
	session, ok := rec.sessions[clientID]
	if ok {
		delete(rec.sessions, clientID)
		rec.finished = append(rec.finished, session)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := session.close(); err != nil {
		r.logger.Errorw("failed to close sink on disconnect",
			"room_id", roomID, "client_id", clientID, "error", err)
		return
	}
	chunks, _ := session.stats()
	r.logger.Infow("recording session closed on disconnect",
		"room_id", roomID, "client_id", clientID, "chunks", chunks)
}

func (r *RecordingService) IsRecording(roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.recordings[roomID]
	return exists
}

func (r *RecordingService) RecordingInfo(roomID domain.RoomID) (domain.RecordingInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.recordings[roomID]
	if !exists {
		return domain.RecordingInfo{}, false
	}
	return domain.RecordingInfo{
		RoomID:       roomID,
		Active:       true,
		StartedBy:    rec.startedBy,
		StartedAt:    rec.startedAt,
		Duration:     utils.Since(rec.startedAt),
		Participants: len(rec.sessions),
	}, true
}
