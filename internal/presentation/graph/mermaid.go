package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	// Tasks colours every category node by its status.
	Tasks map[domain.Category]domain.Status
	// CompletedSteps and CurrentStep colour the guided plan.
	CompletedSteps []string
	CurrentStep    string
}

// OverlayFromSnapshot builds an overlay out of a result set.
func OverlayFromSnapshot(rs *domain.ResultSet) *GraphOverlay {
	o := &GraphOverlay{Tasks: make(map[domain.Category]domain.Status)}
	for _, c := range domain.Categories() {
		o.Tasks[c] = rs.Task(c).Status
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of the guided plan and of the
// category dependencies.
// Shapes:
// - Plan entry: ((Circle))
// - Remote step: [[Subroutine]]
// - Local step: [Rectangle]
// - Category: ([Stadium])
// Remote steps point at the category they compute with a dotted arrow; the
// dependent categories hang off the allocation.
func GenerateMermaid(plan runtime.Plan, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	sb.WriteString("    start((\"start\"))\n")
	prev := "start"
	for _, step := range plan.Steps {
		safeID := "step_" + sanitizeMermaidID(step.ID)

		opener, closer := "[", "]"
		if step.Remote != "" {
			opener, closer = "[[", "]]"
		}
		label := step.ID
		if step.Title != "" {
			label = escapeLabel(step.Title)
		}
		if step.MinDuration > 0 {
			label = fmt.Sprintf("%s <br/> ⏱️ %s", label, step.MinDuration)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)
		fmt.Fprintf(&sb, "    %s --> %s\n", prev, safeID)
		prev = safeID
	}
	if plan.SettleDelay > 0 {
		fmt.Fprintf(&sb, "    %s -- \"settle %s\" --> done((\"done\"))\n", prev, plan.SettleDelay)
	} else {
		fmt.Fprintf(&sb, "    %s --> done((\"done\"))\n", prev)
	}

	sb.WriteString("\n    subgraph tasks [Concurrent analysis]\n")
	for _, c := range domain.Categories() {
		fmt.Fprintf(&sb, "        %s([\"%s\"])\n", categoryID(c), c)
	}
	for _, c := range domain.DependentCategories() {
		fmt.Fprintf(&sb, "        %s -- \"allocation\" --> %s\n", categoryID(domain.CategoryAllocation), categoryID(c))
	}
	sb.WriteString("    end\n")

	for _, step := range plan.Steps {
		if step.Remote == "" {
			continue
		}
		fmt.Fprintf(&sb, "    step_%s -.-> %s\n", sanitizeMermaidID(step.ID), categoryID(step.Remote))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef success fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef loading fill:#fff9c4,stroke:#f9a825,stroke-dasharray: 5 5,color:#000;\n")

		visited := make(map[string]bool)
		for _, id := range overlay.CompletedSteps {
			safeID := sanitizeMermaidID(id)
			if !visited[safeID] && safeID != "" {
				visited[safeID] = true
				fmt.Fprintf(&sb, "    class step_%s visited;\n", safeID)
			}
		}
		if overlay.CurrentStep != "" {
			fmt.Fprintf(&sb, "    class step_%s current;\n", sanitizeMermaidID(overlay.CurrentStep))
		}

		for _, c := range domain.Categories() {
			status, ok := overlay.Tasks[c]
			if !ok {
				continue
			}
			switch status {
			case domain.StatusSuccess:
				fmt.Fprintf(&sb, "    class %s success;\n", categoryID(c))
			case domain.StatusError:
				fmt.Fprintf(&sb, "    class %s failed;\n", categoryID(c))
			case domain.StatusLoading:
				fmt.Fprintf(&sb, "    class %s loading;\n", categoryID(c))
			}
		}
	}

	return sb.String()
}

func categoryID(c domain.Category) string {
	return "task_" + sanitizeMermaidID(string(c))
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
