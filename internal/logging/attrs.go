package logging

import "log/slog"

func FlowName(name string) slog.Attr {
	return slog.String("flow", name)
}

func FlowID(id string) slog.Attr {
	return slog.String("flow_id", id)
}

func Phase(phase string) slog.Attr {
	return slog.String("phase", phase)
}

func Operation(op string) slog.Attr {
	return slog.String("op", op)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
