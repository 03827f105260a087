// Command outputctl is a demo CLI wiring a synthetic video+audio encoder
// pair into an Output bound to a real sink, driving it through start and
// stop (it does not pause the output). It exists to exercise the engine end-to-end, the way
// jmylchreest-tvarr's and zsiec-prism's cmd/ entry points do: a cobra root
// command, YAML config, structured logging.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	engine "github.com/voka-av/outputengine"
	rtpsink "github.com/voka-av/outputengine/sinks/rtp"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		videoAddr  string
		audioAddr  string
		duration   time.Duration
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "outputctl",
		Short: "drive the output engine against a synthetic encoder pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}

			settings := engine.Settings{
				Name:               "outputctl-demo",
				VideoFrameInterval: 33333333 * time.Nanosecond,
				Reconnect:          engine.DefaultReconnectSettings(),
			}
			if configPath != "" {
				loaded, err := engine.LoadSettings(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				loaded.Name = settings.Name
				loaded.VideoFrameInterval = settings.VideoFrameInterval
				settings = loaded
			}

			sink := rtpsink.New(rtpsink.Config{
				VideoAddr: videoAddr,
				AudioAddr: audioAddr,
				VideoPT:   96,
				AudioPT:   97,
			})

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out, err := engine.NewOutput(ctx, "", settings.Name, settings, sink, engine.NewLogrusEmitter(log))
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}

			video := newSyntheticEncoder(webrtc.RTPCodecTypeVideo, "h264", settings.VideoFrameInterval)
			audio := newSyntheticEncoder(webrtc.RTPCodecTypeAudio, "opus", 20*time.Millisecond)
			if err := out.BindVideoEncoder(video); err != nil {
				return fmt.Errorf("bind video encoder: %w", err)
			}
			if err := out.BindAudioEncoder(0, audio); err != nil {
				return fmt.Errorf("bind audio encoder: %w", err)
			}

			if err := out.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			log.WithField("output_id", out.ID()).Info("started")

			timer := time.NewTimer(duration)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C:
			}

			if err := out.Stop(context.Background()); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			log.WithField("total_frames", out.TotalFrames()).Info("stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML settings file")
	cmd.Flags().StringVar(&videoAddr, "video-addr", "127.0.0.1:5004", "UDP destination for RTP video")
	cmd.Flags().StringVar(&audioAddr, "audio-addr", "127.0.0.1:5006", "UDP destination for RTP audio")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to stream before stopping")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
	return cmd
}

// syntheticEncoder produces 32-byte random-payload packets at a fixed interval,
// standing in for a real codec.
type syntheticEncoder struct {
	kind     webrtc.RTPCodecType
	codec    string
	interval time.Duration

	mu     sync.Mutex
	paired engine.Encoder
	lastErr error

	dts atomic.Int64
	cancel context.CancelFunc
}

func newSyntheticEncoder(kind webrtc.RTPCodecType, codec string, interval time.Duration) *syntheticEncoder {
	return &syntheticEncoder{kind: kind, codec: codec, interval: interval}
}

func (e *syntheticEncoder) Kind() webrtc.RTPCodecType { return e.kind }
func (e *syntheticEncoder) Codec() string             { return e.codec }

func (e *syntheticEncoder) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *syntheticEncoder) Pair(other engine.Encoder) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paired = other
	return nil
}

func (e *syntheticEncoder) Paired() engine.Encoder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paired
}

func (e *syntheticEncoder) Start(ctx context.Context, handler engine.PacketHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	tb := engine.Timebase{Num: 1, Den: 1000}
	pktType := engine.PacketAudio
	if e.kind == webrtc.RTPCodecTypeVideo {
		tb = engine.Timebase{Num: 1, Den: 30}
		pktType = engine.PacketVideo
	}

	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		frameNum := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dts := e.dts.Add(tickDelta(tb, e.interval))
				pkt := &engine.Packet{
					Type:     pktType,
					PTS:      dts,
					DTS:      dts,
					TB:       tb,
					Keyframe: pktType == engine.PacketVideo && frameNum%30 == 0,
					Data:     randomPayload(),
					Encoder:  e,
				}
				pkt.SetDTS(dts)
				handler(pkt)
				frameNum++
			}
		}
	}()
	return nil
}

func tickDelta(tb engine.Timebase, interval time.Duration) int64 {
	return int64(interval) * tb.Den / int64(time.Second) / tb.Num
}

func (e *syntheticEncoder) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func randomPayload() []byte {
	b := make([]byte, 32)
	rand.Read(b)
	return b
}
