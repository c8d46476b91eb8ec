package browser

// The console changes its DOM structure between releases, so every element
// we touch has a prioritized list of known selectors. Order matters: the
// first selector is tried first and each miss costs a short wait.

var promptInputSelectors = []string{
	"ms-chunk-editor textarea",
	"ms-prompt-input-wrapper textarea",
	"ms-autosize-textarea textarea",
	"textarea[aria-label='Type something']",
}

var runButtonSelectors = []string{
	"button[aria-label='Run']",
	"ms-run-button button",
	"button.run-button",
}

var stopButtonSelectors = []string{
	"button[aria-label='Stop']",
	"ms-run-button button.stoppable",
	"button.stop-button",
}

var modelSelectorTriggers = []string{
	"ms-model-selector .mat-mdc-select-trigger",
	"ms-model-selector-two-column .mat-mdc-select-trigger",
	"ms-model-selector",
}

var modelOptionListSelectors = []string{
	"mat-option .model-option-content",
	"mat-option",
}
