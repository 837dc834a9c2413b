package rescue

import (
	"log/slog"

	"safesaviour/core/events"
	"safesaviour/crypto"
	nativecommon "safesaviour/native/common"
)

// SetPaused records the pause switch of module and applies it to the
// engine's pause board when that board can be toggled. Restarted nodes
// replay the stored switches over their configured ones.
func (e *Engine) SetPaused(caller crypto.Address, module string, paused bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	module = nativecommon.NormalizeModule(module)
	if module == "" {
		return ErrInvalidModule
	}
	err := e.state.Update(func(w StateWriter) error {
		if err := requireGovernance(w, caller); err != nil {
			return err
		}
		return w.PutModulePaused(module, paused)
	})
	if err != nil {
		return err
	}
	if board, ok := e.pauses.(nativecommon.PauseSwitch); ok {
		board.Set(module, paused)
	}
	e.logger.Info("module pause updated",
		slog.String("module", module),
		slog.Bool("paused", paused),
		slog.String("caller", caller.String()))
	e.emit(events.ModulePauseUpdated{
		Module: module,
		Paused: paused,
		Caller: caller.String(),
	})
	return nil
}
