package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/jcrane/loopd/internal/analysis"
	"github.com/jcrane/loopd/internal/decode"
	"github.com/jcrane/loopd/internal/eventbus"
	"github.com/jcrane/loopd/internal/loop"
	"github.com/jcrane/loopd/internal/pcm"
)

// Server is the Unix-socket JSON-RPC front door: a request/response
// protocol with server-initiated push frames, exposing the play/pause/
// stop/seek/setLoop/setLoopPolicy/getStatus/subscribeEvents command set.
// Each command translates into calls on the loop engine, the PCM store,
// and the analysis driver, with notifications published through the
// event bus.
type Server struct {
	socketPath string
	store      *pcm.Store
	engine     *loop.Engine
	driver     *analysis.Driver
	bus        *eventbus.Bus
	transcoder *decode.Transcoder // optional; nil if ffmpeg isn't on PATH
	errs       *ErrorTracker

	listener net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}

	// autoAnalyze runs the analyzer automatically after a successful load.
	autoAnalyze bool

	// defaultMaxIterations is applied to the engine's loop policy on every
	// successful openFile.
	defaultMaxIterations uint32
}

// ErrorTracker holds the daemon's last user-visible error kind, shared
// between the IPC layer (load failures) and the analysis driver's OnError
// callback, which is wired before a Server necessarily exists.
type ErrorTracker struct {
	mu   sync.Mutex
	kind string
}

func NewErrorTracker() *ErrorTracker { return &ErrorTracker{} }

func (e *ErrorTracker) Set(kind string) {
	e.mu.Lock()
	e.kind = kind
	e.mu.Unlock()
}

func (e *ErrorTracker) Get() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kind
}

// AnalysisErrorHandler builds an analysis.OnError callback that records the
// failure in tracker and publishes AudioError on bus, without disturbing any
// previously published Snapshot.
func AnalysisErrorHandler(bus *eventbus.Bus, tracker *ErrorTracker) analysis.OnError {
	return func(err error) {
		tracker.Set("ErrInternal")
		bus.Publish(eventbus.Event{Kind: eventbus.AudioError, ErrorKind: "ErrInternal", Message: err.Error()})
		log.Printf("[ANALYSIS] %v", err)
	}
}

// NewServer creates a new IPC server bound to socketPath.
func NewServer(socketPath string, store *pcm.Store, engine *loop.Engine, driver *analysis.Driver, bus *eventbus.Bus, errs *ErrorTracker, autoAnalyze bool, defaultMaxIterations uint32) *Server {
	transcoder, err := decode.NewTranscoder()
	if err != nil {
		log.Printf("[IPC] ffmpeg not available, compressed formats will be rejected: %v", err)
		transcoder = nil
	}

	return &Server{
		socketPath:           socketPath,
		store:                store,
		engine:               engine,
		driver:               driver,
		bus:                  bus,
		transcoder:           transcoder,
		errs:                 errs,
		clients:              make(map[net.Conn]struct{}),
		autoAnalyze:          autoAnalyze,
		defaultMaxIterations: defaultMaxIterations,
	}
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("[IPC] Server listening, waiting for connections...")

	go s.acceptLoop(ctx)

	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	log.Printf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[IPC] Accept error: %v", err)
				continue
			}
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		clientCount := len(s.clients)
		s.mu.Unlock()

		log.Printf("[IPC] New client connection, active clients: %d", clientCount)

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	var writeMu sync.Mutex
	var subID int
	subscribed := false

	defer func() {
		cancel()
		if subscribed {
			s.bus.Unsubscribe(subID)
		}
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		log.Printf("[IPC] Client disconnected, active clients: %d", clientCount)
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("[IPC] Read error: %v", err)
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request format: %v", err)
			s.sendLocked(&writeMu, conn, NewErrorResponse("invalid request format"))
			continue
		}

		isPolling := req.Cmd == CmdGetStatus
		if !isPolling {
			log.Printf("[IPC] Command: %s", req.Cmd)
		}

		var resp *Response
		switch req.Cmd {
		case CmdSubscribeEvents:
			if !subscribed {
				var ch <-chan eventbus.Event
				subID, ch = s.bus.Subscribe()
				subscribed = true
				go s.pumpEvents(connCtx, ch, conn, &writeMu)
			}
			resp, _ = NewSuccessResponse(map[string]bool{"subscribed": true})
		case CmdUnsubscribeEvents:
			if subscribed {
				s.bus.Unsubscribe(subID)
				subscribed = false
			}
			resp, _ = NewSuccessResponse(map[string]bool{"subscribed": false})
		default:
			resp = s.handleRequest(ctx, req)
		}

		if !isPolling {
			if resp.Success {
				log.Printf("[IPC] Response: success")
			} else {
				log.Printf("[IPC] Response: error=%q", resp.Error)
			}
		}

		if err := s.sendLocked(&writeMu, conn, resp); err != nil {
			log.Printf("[IPC] Send error: %v", err)
			return
		}
	}
}

// pumpEvents forwards bus events to conn until connCtx is cancelled or the
// subscriber channel is closed, serialized against the request/response
// loop via writeMu so pushed frames never interleave with a reply mid-write.
func (s *Server) pumpEvents(connCtx context.Context, ch <-chan eventbus.Event, conn net.Conn, writeMu *sync.Mutex) {
	for {
		select {
		case <-connCtx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			dto := EventDTO{
				Kind:      e.Kind.String(),
				Path:      e.Path,
				Seconds:   e.Seconds,
				LoopStart: e.LoopStart,
				LoopEnd:   e.LoopEnd,
				ErrorKind: e.ErrorKind,
				Message:   e.Message,
			}
			msg, err := NewPushMessage("event", dto)
			if err != nil {
				continue
			}
			msg = append(msg, '\n')
			writeMu.Lock()
			_, werr := conn.Write(msg)
			writeMu.Unlock()
			if werr != nil {
				return
			}
		}
	}
}

func (s *Server) sendLocked(writeMu *sync.Mutex, conn net.Conn, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	writeMu.Lock()
	defer writeMu.Unlock()
	_, err = conn.Write(data)
	return err
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Cmd {
	case CmdOpenFile:
		return s.handleOpenFile(ctx, req)
	case CmdPlay:
		return s.handlePlay()
	case CmdPause:
		return s.handlePause()
	case CmdStop:
		return s.handleStop()
	case CmdSeek:
		return s.handleSeek(req)
	case CmdSetLoop:
		return s.handleSetLoop(req)
	case CmdSetLoopPolicy:
		return s.handleSetLoopPolicy(req)
	case CmdGetStatus:
		return s.handleGetStatus()
	default:
		return NewErrorResponse("unknown command")
	}
}

func (s *Server) handleOpenFile(ctx context.Context, req *Request) *Response {
	var openReq OpenFileRequest
	if err := json.Unmarshal(req.Data, &openReq); err != nil || openReq.Path == "" {
		return NewErrorResponse("path is required")
	}

	log.Printf("[LOOP] Opening file: %s", openReq.Path)

	track, err := s.loadTrack(ctx, openReq.Path)
	if err != nil {
		kind := classifyErr(err)
		s.errs.Set(kind)
		s.bus.Publish(eventbus.Event{Kind: eventbus.AudioError, ErrorKind: kind, Message: err.Error()})
		log.Printf("[LOOP] Load failed: %v", err)
		return NewErrorResponse(err.Error())
	}

	s.errs.Set("")
	s.store.Publish(track)
	s.engine.Load(track)
	s.engine.SetLoopPolicy(s.defaultMaxIterations)
	s.bus.Publish(eventbus.Event{Kind: eventbus.OpenFile, Path: openReq.Path})

	if s.autoAnalyze {
		s.driver.Analyze(track)
	}

	return s.handleGetStatus()
}

func (s *Server) loadTrack(ctx context.Context, path string) (*pcm.Track, error) {
	if decode.IsCompressed(path) {
		if s.transcoder == nil {
			return nil, fmt.Errorf("%w: compressed format requires ffmpeg, none found", decode.ErrFormat)
		}
		return s.transcoder.LoadCompressed(ctx, path)
	}
	return decode.Load(path)
}

func (s *Server) handlePlay() *Response {
	if err := s.engine.Play(); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.handleGetStatus()
}

func (s *Server) handlePause() *Response {
	s.engine.Pause()
	return s.handleGetStatus()
}

func (s *Server) handleStop() *Response {
	s.engine.Stop()
	return s.handleGetStatus()
}

func (s *Server) handleSeek(req *Request) *Response {
	var seekReq SeekRequest
	if err := json.Unmarshal(req.Data, &seekReq); err != nil {
		return NewErrorResponse("invalid seek request")
	}
	s.engine.Seek(seekReq.Seconds)
	return s.handleGetStatus()
}

func (s *Server) handleSetLoop(req *Request) *Response {
	var loopReq SetLoopRequest
	if err := json.Unmarshal(req.Data, &loopReq); err != nil {
		return NewErrorResponse("invalid setLoop request")
	}
	s.engine.SetLoop(loopReq.StartTime, loopReq.EndTime)
	return s.handleGetStatus()
}

func (s *Server) handleSetLoopPolicy(req *Request) *Response {
	var policyReq SetLoopPolicyRequest
	if err := json.Unmarshal(req.Data, &policyReq); err != nil {
		return NewErrorResponse("invalid setLoopPolicy request")
	}
	s.engine.SetLoopPolicy(policyReq.MaxIterations)
	return s.handleGetStatus()
}

func (s *Server) handleGetStatus() *Response {
	snap := s.engine.State()

	statusResp := StatusResponse{
		IsPlaying:        snap.IsPlaying,
		CurrentTime:      snap.CurrentTime,
		Duration:         snap.Duration,
		LoopStart:        snap.LoopStart,
		LoopEnd:          snap.LoopEnd,
		LoopPolicyMax:    snap.LoopPolicyMax,
		CurrentIteration: snap.CurrentIteration,
		AnalysisProgress: s.driver.Progress(),
		LastError:        s.errs.Get(),
	}

	if last, ok := s.driver.Last(); ok {
		statusResp.SuggestedLoopStart = last.Suggestion.StartTime
		statusResp.SuggestedLoopEnd = last.Suggestion.EndTime
		statusResp.Sections = make([]SectionDTO, len(last.Sections))
		for i, sec := range last.Sections {
			statusResp.Sections[i] = SectionDTO{
				StartTime:  sec.StartTime,
				EndTime:    sec.EndTime,
				Type:       sec.Type.String(),
				Confidence: sec.Confidence,
			}
		}
		statusResp.Candidates = make([]LoopCandidateDTO, len(last.Candidates))
		for i, c := range last.Candidates {
			statusResp.Candidates[i] = LoopCandidateDTO{
				StartTime: c.StartTime,
				EndTime:   c.EndTime,
				Quality:   c.Quality,
				Metrics: CandidateMetricsDTO{
					VolumeChangePercent: c.Metrics.VolumeChangePercent,
					PhaseJump:           c.Metrics.PhaseJump,
					SpectralDifference:  c.Metrics.SpectralDifference,
					HarmonicContinuity:  c.Metrics.HarmonicContinuity,
					EnvelopeContinuity:  c.Metrics.EnvelopeContinuity,
					ZeroStart:           c.Metrics.ZeroStart,
					ZeroEnd:             c.Metrics.ZeroEnd,
				},
			}
		}
	}

	resp, err := NewSuccessResponse(statusResp)
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

