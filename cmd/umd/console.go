package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"

	"github.com/kayon/memdump"
	"github.com/kayon/memdump/utils"
)

const maxFindResults = 32

const (
	ConsoleStepMenu = iota
	ConsoleStepRead
	ConsoleStepFind
	ConsoleStepRegions
	ConsoleStepRegisters
	ConsoleExit
)

var menuItems = []string{"Read memory", "Find bytes", "Regions", "Registers", "Quit"}

type Console struct {
	step     uint8
	snap     *memdump.Snapshot
	wordSize int
}

func runConsole(snap *memdump.Snapshot) {
	console := &Console{
		snap:     snap,
		wordSize: snap.WordSize(),
	}
	console.Run()
}

func (console *Console) Run() {
	for {
		switch console.step {
		case ConsoleStepMenu:
			console.menu()
		case ConsoleStepRead:
			console.read()
		case ConsoleStepFind:
			console.find()
		case ConsoleStepRegions:
			displayRegions(console.snap.Layout())
			console.step = ConsoleStepMenu
		case ConsoleStepRegisters:
			displayRegisters(console.snap)
			console.step = ConsoleStepMenu
		default:
			return
		}
	}
}

func (console *Console) menu() {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ . | red }}",
		Inactive: "  {{ . }}",
	}
	prompt := promptui.Select{
		Label:     colorLabel.Sprintf("<INSPECT> [%s]", console.snap),
		Items:     menuItems,
		Templates: templates,
		Size:      len(menuItems),
	}
	prompt.HideHelp = true

	i, _, err := prompt.Run()
	console.checkError(err)
	// menu order follows the step constants
	console.step = uint8(i + 1)
}

func (console *Console) read() {
	address, err := console.prompt("<ADDRESS>", "hex, e.g. 7ffd1000", validateAddress)
	console.checkError(err)
	length, err := console.prompt("<LENGTH>", "bytes to read", validateLength)
	console.checkError(err)

	addr, _ := parseAddress(address)
	n, _ := strconv.ParseUint(strings.TrimSpace(length), 10, 64)

	data, err := console.snap.Read(addr, n)
	if err != nil {
		color.Red("%v, try another address and/or length", err)
		return
	}

	label := fmt.Sprintf("%d bytes at %016X", n, addr)
	if region, _, ok := console.snap.Layout().Region(addr); ok {
		label += fmt.Sprintf(" (%s %s)", region.Perms, region.Name)
	}
	colorLabel.Println(label)
	displayChunk(addr, data, console.wordSize)
	console.step = ConsoleStepMenu
}

func (console *Console) find() {
	input, err := console.prompt("<FIND>", `hex bytes, e.g. "7F 45 4C 46"`, func(s string) error {
		_, err := utils.ParseHex(s)
		return err
	})
	console.checkError(err)

	pattern, _ := utils.ParseHex(input)
	addresses := console.snap.Find(pattern, maxFindResults)
	if len(addresses) == 0 {
		color.Yellow("No results")
	}
	for i, addr := range addresses {
		region, _, _ := console.snap.Layout().Region(addr)
		fmt.Printf("%2d. %s %s\n", i, colorAddress.Sprintf("%016X", addr), region.Name)
	}
	if len(addresses) == maxFindResults {
		color.Yellow("Showing the first %d results", maxFindResults)
	}
	console.step = ConsoleStepMenu
}

func (console *Console) prompt(label, help string, validate promptui.ValidateFunc) (string, error) {
	templates := &promptui.PromptTemplates{
		Prompt:  "{{ . }} ",
		Valid:   "{{ . | green }} ",
		Invalid: "{{ . | red }} ",
		Success: "{{ . }} ",
	}
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", colorLabel.Sprint(label), help),
		Templates: templates,
		Validate:  validate,
	}
	return prompt.Run()
}

func (console *Console) checkError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		console.step = ConsoleExit
		_ = console.snap.Close()
		os.Exit(0)
	}
	color.Red("ERROR: %v", err)
	os.Exit(1)
}

func parseAddress(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	return strconv.ParseUint(s, 16, 64)
}

func validateAddress(s string) error {
	_, err := parseAddress(s)
	return err
}

func validateLength(s string) error {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("length must be positive")
	}
	return nil
}
