package pipeline

import "coinlake/internal/cli"

func runStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

func failureReason(err error) string {
	return cli.Reason(err)
}
