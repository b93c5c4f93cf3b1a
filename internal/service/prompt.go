package service

import (
	"fmt"
	"strings"

	"novel-chat/internal/domain"
)

// buildWriterPrompt arma el prompt del asistente de escritura a partir del
// historial reciente, los intercambios con like y las opciones del request.
func buildWriterPrompt(history []domain.Message, liked []domain.LikedExchange, opts domain.RequestOptions, userMessage string) string {
	var sb strings.Builder

	sb.WriteString("Eres el asistente de escritura de un novelista. ")
	sb.WriteString("Ayudas a desarrollar tramas, personajes y capítulos manteniendo la coherencia de la obra.\n\n")

	if opts.Language != "" {
		sb.WriteString(fmt.Sprintf("Responde siempre en %s.\n", opts.Language))
	}
	if opts.SeriesID != "" {
		sb.WriteString(fmt.Sprintf("La conversación ocurre dentro del universo narrativo %s; no contradigas su canon.\n", opts.SeriesID))
	}
	if len(opts.Categories) > 0 {
		sb.WriteString(fmt.Sprintf("Limita la recuperación de contexto a: %s.\n", strings.Join(opts.Categories, ", ")))
	}
	sb.WriteString("\n")

	if len(liked) > 0 {
		sb.WriteString("=== INTERCAMBIOS QUE EL AUTOR MARCÓ COMO BUENOS ===\n")
		sb.WriteString("Imita el tono y el nivel de detalle de estas respuestas:\n")
		for _, e := range liked {
			sb.WriteString(fmt.Sprintf("Autor: %s\nAsistente: %s\n---\n", e.Question, e.Answer))
		}
		sb.WriteString("\n")
	}

	if opts.DocumentText != "" {
		sb.WriteString("=== DOCUMENTO SUBIDO POR EL AUTOR ===\n")
		if opts.DocumentName != "" {
			sb.WriteString(fmt.Sprintf("(%s)\n", opts.DocumentName))
		}
		sb.WriteString(opts.DocumentText)
		sb.WriteString("\n\n")
	}

	if recent := recentWindow(history, 10); len(recent) > 0 {
		sb.WriteString("=== CONVERSACIÓN RECIENTE ===\n")
		for _, m := range recent {
			role := "Autor"
			if m.Role == domain.RoleAssistant {
				role = "Asistente"
			}
			sb.WriteString(fmt.Sprintf("%s: %s\n", role, m.Content))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Autor: ")
	sb.WriteString(userMessage)
	sb.WriteString("\nAsistente:")

	return sb.String()
}

// recentWindow recorta el historial a los últimos n turnos, dejando afuera
// el mensaje entrante que ya viene aparte en el prompt.
func recentWindow(history []domain.Message, n int) []domain.Message {
	if len(history) > 0 {
		last := history[len(history)-1]
		if last.Role == domain.RoleUser {
			history = history[:len(history)-1]
		}
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	return history
}

func titlePrompt(basis string) string {
	return fmt.Sprintf(
		"Genera un título corto (máximo 6 palabras) para una conversación de escritura que empieza así: %q. Devuelve solo el título, sin comillas.",
		basis,
	)
}
