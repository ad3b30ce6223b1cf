// Package bttree parses a Groot2-style BehaviorTree.CPP XML document into a
// runnable btnodes.Node tree. It is the concrete treerunner.TreeLoader the
// composition root supplies: treerunner only owns the reload/tick
// lifecycle, this package owns turning markup into nodes.
package bttree

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wxzhao/workstation/internal/btnodes"
)

// element is a generic parsed XML node: tag name, attributes, and children
// in document order. encoding/xml has no built-in "parse into an untyped
// tree" mode, so this package walks the token stream itself.
type element struct {
	Tag      string
	Attrs    map[string]string
	Children []element
}

func parse(data []byte) (element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var stack []element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return element{}, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := element{Tag: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.Attrs[a.Name.Local] = a.Value
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return element{}, fmt.Errorf("bttree: unmatched closing tag %q", t.Name.Local)
			}
			finished := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return finished, nil
			}
			parent := &stack[len(stack)-1]
			parent.Children = append(parent.Children, finished)
		}
	}
	return element{}, fmt.Errorf("bttree: no root element found")
}

// unwrap descends through <root> and <BehaviorTree> wrapper elements,
// matching BT.CPP's document shape, down to the single top-level node the
// tree actually runs.
func unwrap(el element) (element, error) {
	for el.Tag == "root" || el.Tag == "BehaviorTree" {
		if len(el.Children) != 1 {
			return element{}, fmt.Errorf("bttree: %q must have exactly one child, got %d", el.Tag, len(el.Children))
		}
		el = el.Children[0]
	}
	return el, nil
}

// Build parses xmlDoc and constructs the equivalent btnodes.Node tree.
// defaultTimeoutMs is used for every action node's command timeout; Deps
// carries the bus/cache/trace wiring every leaf action needs.
func Build(xmlDoc []byte, deps btnodes.Deps, defaultTimeoutMs int) (btnodes.Node, error) {
	root, err := parse(xmlDoc)
	if err != nil {
		return nil, err
	}
	root, err = unwrap(root)
	if err != nil {
		return nil, err
	}
	return build(root, deps, defaultTimeoutMs)
}

func build(el element, deps btnodes.Deps, timeoutMs int) (btnodes.Node, error) {
	switch el.Tag {
	case "Sequence", "SequenceWithMemory":
		children, err := buildChildren(el, deps, timeoutMs)
		if err != nil {
			return nil, err
		}
		return btnodes.NewSequence(children...), nil

	case "Fallback", "Selector":
		children, err := buildChildren(el, deps, timeoutMs)
		if err != nil {
			return nil, err
		}
		return btnodes.NewFallback(children...), nil

	case "Parallel":
		children, err := buildChildren(el, deps, timeoutMs)
		if err != nil {
			return nil, err
		}
		threshold := len(children)
		if v, ok := el.Attrs["success_threshold"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				threshold = n
			}
		}
		return btnodes.NewParallel(threshold, children...), nil

	case "Inverter":
		child, err := buildOnlyChild(el, deps, timeoutMs)
		if err != nil {
			return nil, err
		}
		return btnodes.NewInverter(child), nil

	case "ForceSuccess":
		child, err := buildOnlyChild(el, deps, timeoutMs)
		if err != nil {
			return nil, err
		}
		return btnodes.NewForceSuccess(child), nil

	case "Retry", "RetryUntilSuccessful":
		child, err := buildOnlyChild(el, deps, timeoutMs)
		if err != nil {
			return nil, err
		}
		attempts := 3
		if v, ok := el.Attrs["num_attempts"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				attempts = n
			}
		}
		return btnodes.NewRetry(attempts, child), nil

	case "Action", "Condition":
		return buildAction(el, deps, timeoutMs)

	default:
		return nil, fmt.Errorf("bttree: unknown node type %q", el.Tag)
	}
}

func buildChildren(el element, deps btnodes.Deps, timeoutMs int) ([]btnodes.Node, error) {
	children := make([]btnodes.Node, 0, len(el.Children))
	for _, c := range el.Children {
		node, err := build(c, deps, timeoutMs)
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}
	return children, nil
}

func buildOnlyChild(el element, deps btnodes.Deps, timeoutMs int) (btnodes.Node, error) {
	if len(el.Children) != 1 {
		return nil, fmt.Errorf("bttree: %q decorator must have exactly one child, got %d", el.Tag, len(el.Children))
	}
	return build(el.Children[0], deps, timeoutMs)
}

// actionTable maps an <Action ID="..."> or <Condition ID="..."> attribute
// to the btnodes constructor it binds to, mirroring the handler catalog in
// the op dispatcher.
var actionTable = map[string]func(deps btnodes.Deps, timeoutMs int) *btnodes.CommandAction{
	"moveL":                  btnodes.NewMoveLinear,
	"moveLine":               btnodes.NewMoveLinear,
	"moveJoint":              btnodes.NewMoveJoint,
	"moveJ":                  btnodes.NewMoveJoint,
	"path_download":          btnodes.NewPathDownload,
	"slowSpeed":              btnodes.NewSlowSpeed,
	"slow_speed":             btnodes.NewSlowSpeed,
	"quickStop":              btnodes.NewQuickStop,
	"quick_stop":             btnodes.NewQuickStop,
	"demo_echo":              btnodes.NewDemoEcho,
	"power_on_enable":        btnodes.NewPowerOnEnable,
	"powerOnEnable":          btnodes.NewPowerOnEnable,
	"fault_reset":            btnodes.NewFaultReset,
	"reset_system":           btnodes.NewFaultReset,
	"is_ready":               btnodes.NewIsReady,
	"is_power_on":            btnodes.NewIsPowerOn,
	"is_start_signal":        btnodes.NewIsStartSignal,
	"is_stop_signal":         btnodes.NewIsStopSignal,
	"is_trajectory_complete": btnodes.NewIsTrajectoryComplete,
	"wait_for_start":         btnodes.NewWaitForStart,
	"execute_trajectory":     btnodes.NewExecuteTrajectory,
	"emergency_stop":         btnodes.NewEmergencyStop,
}

func buildAction(el element, deps btnodes.Deps, timeoutMs int) (btnodes.Node, error) {
	id := el.Attrs["ID"]
	ctor, ok := actionTable[id]
	if !ok {
		if id == "robot_mode" || id == "get_joint_actual_pos" {
			return buildGetter(el, deps, timeoutMs)
		}
		return nil, fmt.Errorf("bttree: unknown action ID %q", id)
	}

	ports := make(btnodes.Ports, len(el.Attrs))
	for k, v := range el.Attrs {
		if k == "ID" {
			continue
		}
		ports[k] = v
	}
	if t, ok := el.Attrs["timeout_ms"]; ok {
		if n, err := strconv.Atoi(t); err == nil {
			timeoutMs = n
		}
	}
	return ctor(deps, timeoutMs).Bind(ports), nil
}

// buildGetter handles the two getter ops, whose constructors take extra
// output-port names rather than fitting the uniform (deps, timeoutMs)
// shape every other action does.
func buildGetter(el element, deps btnodes.Deps, timeoutMs int) (btnodes.Node, error) {
	ports := make(btnodes.Ports, len(el.Attrs))
	keys := make([]string, 0, len(el.Attrs))
	for k, v := range el.Attrs {
		if k == "ID" {
			continue
		}
		ports[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)

	switch el.Attrs["ID"] {
	case "robot_mode":
		return btnodes.NewRobotMode(deps, timeoutMs, el.Attrs["mode_port"]).Bind(ports), nil
	case "get_joint_actual_pos":
		return btnodes.NewGetJointActualPos(deps, timeoutMs, el.Attrs["rad_port"], el.Attrs["deg_port"]).Bind(ports), nil
	}
	return nil, fmt.Errorf("bttree: unhandled getter %q", el.Attrs["ID"])
}
