package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"novel-chat/internal/config"
	"novel-chat/internal/controller"
	"novel-chat/internal/domain"
	"novel-chat/internal/gateway"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	gw := gateway.NewHTTPGateway(cfg.ChatAPIURL, cfg.ChatAPIKey, logger)
	ctrl := controller.NewSessionController(gw, logger)

	// Imprime los deltas del asistente a medida que llegan.
	var printed int
	ctrl.Subscribe(func(s controller.Snapshot) {
		if !s.IsStreaming || len(s.Messages) == 0 {
			return
		}
		last := s.Messages[len(s.Messages)-1]
		if last.Role != domain.RoleAssistant {
			return
		}
		if len(last.Content) > printed {
			fmt.Print(last.Content[printed:])
			printed = len(last.Content)
		}
	})

	if err := ctrl.LoadSessions(ctx); err != nil {
		fmt.Printf("No se pudo cargar la lista de sesiones: %v\n", err)
	}

	fmt.Println("===== Asistente de Escritura =====")
	fmt.Println("Comandos: /sesiones /nueva /abrir N /borrar N /serie ID /like /dislike /salir")

	for {
		fmt.Print("\nTu > ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case line == "/salir":
			return
		case line == "/sesiones":
			printSessions(ctrl.Snapshot())
		case line == "/nueva":
			if err := ctrl.CreateSession(ctx, ""); err != nil {
				fmt.Printf("error creando sesion: %v\n", err)
			} else {
				fmt.Println("Sesion nueva activa.")
			}
		case strings.HasPrefix(line, "/abrir "):
			openSession(ctx, ctrl, strings.TrimPrefix(line, "/abrir "))
		case strings.HasPrefix(line, "/borrar "):
			deleteSession(ctx, ctrl, strings.TrimPrefix(line, "/borrar "))
		case strings.HasPrefix(line, "/serie "):
			ctrl.SetSeriesContext(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/serie ")))
			fmt.Println("Serie activa actualizada.")
		case line == "/like" || line == "/dislike":
			sendFeedback(ctx, ctrl, strings.TrimPrefix(line, "/"))
		default:
			printed = 0
			fmt.Print("Asistente > ")
			if err := ctrl.StreamMessage(ctx, line); err != nil {
				if errors.Is(err, controller.ErrSendInFlight) {
					fmt.Println("\nYa hay un envio en curso.")
					continue
				}
				fmt.Printf("\nerror generando respuesta: %v\n", err)
				continue
			}
			fmt.Println()
		}
	}
}

func printSessions(snap controller.Snapshot) {
	if len(snap.Sessions) == 0 {
		fmt.Println("No hay sesiones todavia.")
		return
	}
	for i, s := range snap.Sessions {
		marker := " "
		if s.ID == snap.ActiveSessionID {
			marker = "*"
		}
		title := s.Title
		if title == "" {
			title = "(sin titulo)"
		}
		fmt.Printf("%s [%d] %s (%d mensajes, %s)\n", marker, i+1, title, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func openSession(ctx context.Context, ctrl *controller.SessionController, arg string) {
	snap := ctrl.Snapshot()
	idx, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || idx < 1 || idx > len(snap.Sessions) {
		fmt.Println("Seleccion invalida.")
		return
	}
	session := snap.Sessions[idx-1]
	if err := ctrl.SelectSession(ctx, session.ID); err != nil {
		fmt.Printf("error abriendo sesion: %v\n", err)
		return
	}
	for _, m := range ctrl.Snapshot().Messages {
		role := "Tu"
		if m.Role == domain.RoleAssistant {
			role = "Asistente"
		}
		fmt.Printf("%s > %s\n", role, m.Content)
	}
}

func deleteSession(ctx context.Context, ctrl *controller.SessionController, arg string) {
	snap := ctrl.Snapshot()
	idx, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || idx < 1 || idx > len(snap.Sessions) {
		fmt.Println("Seleccion invalida.")
		return
	}
	if err := ctrl.DeleteSession(ctx, snap.Sessions[idx-1].ID); err != nil {
		fmt.Printf("error borrando sesion: %v\n", err)
		return
	}
	fmt.Println("Sesion borrada.")
}

// sendFeedback marca el ultimo intercambio de la transcripcion.
func sendFeedback(ctx context.Context, ctrl *controller.SessionController, verdict string) {
	snap := ctrl.Snapshot()
	if len(snap.Messages) == 0 {
		fmt.Println("No hay mensajes para puntuar.")
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role != domain.RoleAssistant || last.ID <= 0 || last.UserMessageID <= 0 {
		fmt.Println("El ultimo intercambio todavia no esta confirmado por el servidor.")
		return
	}
	if err := ctrl.SetFeedback(ctx, last.UserMessageID, last.ID, verdict); err != nil {
		fmt.Printf("error guardando feedback: %v\n", err)
		return
	}
	fmt.Println("Feedback guardado.")
}
