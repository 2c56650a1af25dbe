package mixer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"huddle/internal/core/domain"
	"huddle/pkg/utils"
	"huddle/pkg/validation"

	"go.uber.org/zap"
)

// FFmpegMixer mixes per-participant tracks into one artifact by invoking an
// external ffmpeg binary with an explicit argument list. Identifiers are
// validated for shape before they reach any path construction; nothing is
// ever shell-interpolated.
type FFmpegMixer struct {
	ffmpegPath string
	dir        string
	fileExt    string
	logger     *zap.SugaredLogger
}

func NewFFmpegMixer(ffmpegPath, dir, fileExt string, logger *zap.SugaredLogger) *FFmpegMixer {
	return &FFmpegMixer{
		ffmpegPath: ffmpegPath,
		dir:        dir,
		fileExt:    fileExt,
		logger:     logger,
	}
}

func (m *FFmpegMixer) Merge(ctx context.Context, roomID domain.RoomID, inputs []string) (string, error) {
	if err := validation.ValidateRoomCode(string(roomID), domain.RoomCodeLength); err != nil {
		return "", fmt.Errorf("refusing merge for malformed room id: %w", err)
	}
	if len(inputs) < 2 {
		return "", fmt.Errorf("merge needs at least two inputs, got %d", len(inputs))
	}

	m.removeStaleMerges(roomID)

	roomDir := filepath.Join(m.dir, string(roomID))
	args := make([]string, 0, 2*len(inputs)+6)
	for _, in := range inputs {
		args = append(args, "-i", filepath.Join(roomDir, filepath.Base(in)))
	}
	outName := fmt.Sprintf("merged_%s_%d.%s", roomID, utils.Now().UnixMilli(), m.fileExt)
	outPath := filepath.Join(m.dir, outName)
	args = append(args,
		"-filter_complex", fmt.Sprintf("amix=inputs=%d:duration=longest", len(inputs)),
		"-y", outPath,
	)

	m.logger.Infow("invoking ffmpeg merge", "room_id", roomID, "inputs", len(inputs), "output", outName)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outPath)
		detail := string(output)
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return "", fmt.Errorf("%w: %v: %s", domain.ErrMergeFailed, err, detail)
	}
	return outName, nil
}

// removeStaleMerges deletes any previously merged artifact for the room so
// repeated stop cycles do not accumulate.
func (m *FFmpegMixer) removeStaleMerges(roomID domain.RoomID) {
	pattern := filepath.Join(m.dir, fmt.Sprintf("merged_%s_*.%s", roomID, m.fileExt))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	for _, stale := range matches {
		if err := os.Remove(stale); err != nil {
			m.logger.Warnw("failed to delete stale merge", "file", stale, "error", err)
		}
	}
}
