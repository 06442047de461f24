package main

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

// demoFixtures holds the Ticket Triage example's option defaults and named
// webhook-response payloads, loaded once from fixtures.yaml so the CLI's
// canned inputs live alongside demo_brain.go rather than baked into flag
// definitions.
type demoFixtures struct {
	Options          map[string]string `yaml:"options"`
	WebhookResponses map[string]string `yaml:"webhook_responses"`
}

func loadDemoFixtures() (*demoFixtures, error) {
	var f demoFixtures
	if err := yaml.Unmarshal(fixturesYAML, &f); err != nil {
		return nil, fmt.Errorf("braindemo: decode fixtures.yaml: %w", err)
	}
	return &f, nil
}

// webhookResponse looks name up in the fixture's named responses. It backs
// the resume command's --webhook-fixture flag, which is consulted only when
// --webhook-response is empty.
func (f *demoFixtures) webhookResponse(name string) (string, error) {
	if payload, ok := f.WebhookResponses[name]; ok {
		return payload, nil
	}
	return "", fmt.Errorf("braindemo: no %q fixture in fixtures.yaml", name)
}
