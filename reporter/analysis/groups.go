package analysis

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/cimetrics/reporter/config"
)

// GroupRule assigns metrics whose name matches Pattern to a group
type GroupRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// CompileGroupRules compiles configured patterns in order. Patterns match at
// the start of the metric name, not anywhere in it.
func CompileGroupRules(patterns config.GroupPatterns) ([]GroupRule, error) {
	rules := make([]GroupRule, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p.Pattern + ")")
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", p.Name, err)
		}
		rules = append(rules, GroupRule{Name: p.Name, Pattern: re})
	}
	return rules, nil
}

// GroupAssignment maps every metric to exactly one group
type GroupAssignment struct {
	// Order lists the non-empty groups in display order
	Order   []string
	members map[string][]string
	groupOf map[string]string
}

// Members returns the metrics of a group in ascending order
func (g *GroupAssignment) Members(group string) []string {
	return g.members[group]
}

// GroupOf returns the group of a metric
func (g *GroupAssignment) GroupOf(metric string) (string, bool) {
	group, ok := g.groupOf[metric]
	return group, ok
}

// AssignGroups places each name in a group. An explicit tag wins, then the
// first matching rule in configuration order, then defaultGroup.
//
// Groups are ordered as configured, followed by tagged groups that are not
// configured (alphabetically), followed by the default group.
func AssignGroups(names []string, explicit map[string]string, rules []GroupRule, defaultGroup string) *GroupAssignment {
	g := &GroupAssignment{
		members: make(map[string][]string),
		groupOf: make(map[string]string, len(names)),
	}

	for _, name := range names {
		if _, done := g.groupOf[name]; done {
			continue
		}
		group := defaultGroup
		if tag, ok := explicit[name]; ok && tag != "" {
			group = tag
		} else {
			for _, rule := range rules {
				if rule.Pattern.MatchString(name) {
					group = rule.Name
					break
				}
			}
		}
		g.groupOf[name] = group
		g.members[group] = append(g.members[group], name)
	}

	for _, members := range g.members {
		sort.Strings(members)
	}

	configured := make(map[string]bool, len(rules))
	for _, rule := range rules {
		configured[rule.Name] = true
		if len(g.members[rule.Name]) > 0 && rule.Name != defaultGroup {
			g.Order = append(g.Order, rule.Name)
		}
	}
	var tagged []string
	for group := range g.members {
		if !configured[group] && group != defaultGroup {
			tagged = append(tagged, group)
		}
	}
	sort.Strings(tagged)
	g.Order = append(g.Order, tagged...)
	if len(g.members[defaultGroup]) > 0 {
		g.Order = append(g.Order, defaultGroup)
	}

	return g
}
