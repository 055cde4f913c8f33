package store

import "fmt"

const keyPrefix = "bonvoyage:"

func keyPartial(requestID string) string {
	return fmt.Sprintf("request:%s:partial", requestID)
}

func keyReplied(requestID string) string {
	return fmt.Sprintf("request:%s:replied", requestID)
}

func keyFinal(requestID string) string {
	return fmt.Sprintf("request:%s:final", requestID)
}

func keyParams(requestID string) string {
	return fmt.Sprintf("request:%s:params", requestID)
}
