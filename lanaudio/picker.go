package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/companyzero/lanaudio/internal/audio"
	"github.com/erikgeiser/promptkit/selection"
	"golang.org/x/term"
)

var errNoSelectableDevice = errors.New("no selectable capture device")

var (
	styleHeader  = lipgloss.NewStyle().Bold(true).Underline(true)
	styleIndex   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(4).Align(lipgloss.Right)
	styleDefault = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleHint    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11"))
	kindStyles   = map[audio.DeviceKind]lipgloss.Style{
		audio.DeviceKindPhysical:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		audio.DeviceKindVirtual:     lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		audio.DeviceKindSystemAudio: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	}
)

// deviceChoice is a device listed in the interactive picker.
type deviceChoice struct {
	audio.Device
}

func (dc deviceChoice) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s (%s)", dc.Index, dc.Name, dc.Kind)
	if dc.IsDefault {
		b.WriteString(" [default]")
	}
	return b.String()
}

// selector returns the selector that opens the chosen device.
func (dc deviceChoice) selector() audio.DeviceSelector {
	if dc.Kind == audio.DeviceKindSystemAudio {
		return audio.SystemAudioSelector
	}
	return audio.DeviceSelector(dc.Index)
}

// stdinIsTerminal returns true if the picker can be used.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// selectableChoices returns the devices that can be picked.
func selectableChoices(src *audio.Source, devices []audio.Device) []deviceChoice {
	res := make([]deviceChoice, 0, len(devices))
	for _, d := range devices {
		if src.IsSystemAudioHint(d) {
			continue
		}
		res = append(res, deviceChoice{Device: d})
	}
	return res
}

// pickDevice prompts the user to choose the capture device.
func pickDevice(src *audio.Source) (audio.DeviceSelector, error) {
	devices, err := src.ListDevices()
	if err != nil {
		return 0, err
	}
	choices := selectableChoices(src, devices)
	if len(choices) == 0 {
		return 0, errNoSelectableDevice
	}

	sp := selection.New("Select the audio source to broadcast", choices)
	sp.Filter = nil
	sp.PageSize = 10
	choice, err := sp.RunPrompt()
	if err != nil {
		return 0, err
	}
	return choice.selector(), nil
}

// writeDeviceList writes the styled list of devices.
func writeDeviceList(w io.Writer, src *audio.Source, devices []audio.Device) {
	fmt.Fprintln(w, styleHeader.Render(fmt.Sprintf("Capture devices (%s)", src.DriverName())))
	if len(devices) == 0 {
		fmt.Fprintln(w, "  No capture devices found")
		return
	}
	for _, d := range devices {
		idx := styleIndex.Render(fmt.Sprintf("%d", d.Index))
		if src.IsSystemAudioHint(d) {
			fmt.Fprintf(w, "%s  %s\n", idx, styleHint.Render(d.Name))
			continue
		}
		line := fmt.Sprintf("%s  %s %s", idx, d.Name,
			kindStyles[d.Kind].Render("("+string(d.Kind)+")"))
		if d.IsDefault {
			line += " " + styleDefault.Render("[default]")
		}
		fmt.Fprintln(w, line)
	}
}
