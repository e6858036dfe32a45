// Command joincall is a headless call participant: it resolves a room code,
// joins the session and relays signaling end to end without a browser.
// Useful for smoke-testing a deployment and for exercising the call core
// against a live relay.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/easecampusghana/extraclasses-live/internal/call"
	"github.com/easecampusghana/extraclasses-live/internal/logging"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "call service base URL")
		token     = flag.String("token", "", "access token of the joining participant")
		roomCode  = flag.String("room", "", "room code to join")
		name      = flag.String("name", "joincall", "display name used in chat")
		sayHello  = flag.Bool("chat", false, "send a greeting once in the call")
		endOnExit = flag.Bool("end", false, "end the session for both sides on exit instead of just leaving")
	)
	flag.Parse()

	log := logging.New("debug", false)
	if *token == "" || *roomCode == "" {
		log.Fatal().Msg("both -token and -room are required")
	}

	api := call.NewAPIClient(*serverURL, *token)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	channel, err := call.DialChannel(dialCtx, *serverURL, *roomCode, *token)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("could not reach the signaling relay")
	}

	controller := call.NewController(api, api, channel, call.NewStaticSource(), *name, call.ControllerCallbacks{
		OnPhase: func(p call.Phase) {
			log.Info().Str("phase", string(p)).Msg("phase changed")
		},
		OnPeerState: func(s call.ConnState) {
			log.Info().Str("state", string(s)).Msg("peer connection")
		},
		OnPresence: func(present bool, who string) {
			log.Info().Bool("present", present).Str("who", who).Msg("counterparty presence")
		},
	}, log)

	phase := controller.Join(ctx, *roomCode)
	switch phase {
	case call.PhaseWaitingRoom:
	case call.PhaseEnded:
		log.Info().Msg("session already ended")
		return
	default:
		log.Fatal().Str("reason", controller.Failure()).Msg("could not join")
	}

	room := controller.Room()
	log.Info().
		Str("subject", room.Subject).
		Str("role", string(room.Role)).
		Str("other_party", room.OtherPartyName).
		Msg("joined waiting room")

	if err := controller.ConfirmReady(ctx); err != nil {
		log.Fatal().Err(err).Msg("ready confirmation failed")
	}

	if *sayHello {
		if err := controller.Chat().Send(ctx, "joincall connected"); err != nil {
			log.Warn().Err(err).Msg("greeting failed")
		}
	}

	<-ctx.Done()

	if *endOnExit {
		endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := controller.EndCall(endCtx); err != nil {
			log.Warn().Err(err).Msg("end call failed")
		}
	} else {
		controller.Leave()
	}
	log.Info().Msg("left the call")
}
