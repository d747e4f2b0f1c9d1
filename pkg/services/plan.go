package services

import (
	"fmt"
	"strings"
)

// DerivePlan expands a research query into a small ordered list of
// sub-questions using fixed prefix templates. Deterministic and free of
// I/O: the planner step is seeded synchronously at run creation and must
// never block on a model or the network.
func DerivePlan(query string) []string {
	topic := strings.TrimSpace(query)
	return []string{
		fmt.Sprintf("What is meant by %q and why does it matter?", topic),
		fmt.Sprintf("What are the key factors and tradeoffs behind %q?", topic),
		fmt.Sprintf("What evidence, data, or expert views exist on %q?", topic),
		fmt.Sprintf("What practical recommendation follows for %q?", topic),
	}
}
