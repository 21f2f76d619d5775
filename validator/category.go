// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package validator

import "fmt"

// Category tags the kind of operation a denylist rule guards against.
type Category int

const (
	categoryUnknown Category = iota
	RecursiveDelete
	Format
	Power
	Service
	Account
	DynamicEval
)

var categoryNames = map[Category]string{
	RecursiveDelete: "recursive-delete",
	Format:          "format",
	Power:           "power",
	Service:         "service",
	Account:         "account",
	DynamicEval:     "dynamic-eval",
}

var categoryDescriptions = map[Category]string{
	RecursiveDelete: "recursive or forceful deletion",
	Format:          "drive or volume formatting",
	Power:           "system shutdown or restart",
	Service:         "service creation, start, stop, modification or deletion",
	Account:         "user or account creation or modification",
	DynamicEval:     "evaluating a string as code",
}

// Categories returns all known categories in declaration order.
func Categories() []Category {
	return []Category{RecursiveDelete, Format, Power, Service, Account, DynamicEval}
}

func (c Category) valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Description is a human-readable explanation of the category.
func (c Category) Description() string {
	return categoryDescriptions[c]
}

// ParseCategory maps a category name back to its value.
func ParseCategory(name string) (Category, error) {
	for c, n := range categoryNames {
		if n == name {
			return c, nil
		}
	}
	return categoryUnknown, fmt.Errorf("unknown denylist category %q", name)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, fmt.Errorf("unknown denylist category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
