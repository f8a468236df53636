package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}
	if backend == nil {
		return fmt.Errorf("console ui: backend is nil")
	}

	userID := opts.user()
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Bienvenido al asistente de Alisys. Escribe /ayuda para ver los comandos, exit/quit para salir.")
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "Hasta pronto.")
			return nil
		default:
		}

		fmt.Fprint(out, "Tú: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("leer entrada: %w", err)
			}
			// 最后一行没有换行符时照常处理，下一轮再退出
			if strings.TrimSpace(line) == "" {
				fmt.Fprintln(out)
				return nil
			}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		message := line
		if res, ok := HandleCommand(ctx, backend, userID, line); ok {
			if res.Quit {
				fmt.Fprintln(out, "Hasta pronto.")
				return nil
			}
			if res.Output != "" {
				fmt.Fprintln(out, res.Output)
				fmt.Fprintln(out)
			}
			if res.Message == "" {
				continue
			}
			message = res.Message
		}

		sr, err := backend.HandleMessage(ctx, userID, message)
		if err != nil {
			fmt.Fprintf(out, "Asistente: (error: %v)\n\n", err)
			continue
		}
		fmt.Fprint(out, "Asistente: ")
		if _, err := StreamTo(out, sr); err != nil {
			fmt.Fprintf(out, "\n(error: %v)", err)
		}
		fmt.Fprint(out, "\n\n")
	}
}

// StreamTo 把流中的片段依次写入 w，返回完整文本。
func StreamTo(w io.Writer, sr *schema.StreamReader[string]) (string, error) {
	defer sr.Close()
	var sb strings.Builder
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
		if _, err := io.WriteString(w, chunk); err != nil {
			return sb.String(), err
		}
	}
}
