package journal

import (
	"github.com/roach88/rewind/internal/ir"
)

// dispatch runs ops in insertion order. Dead targets and composites whose
// guard fails are skipped; failed calls become diagnostics. Nothing here
// aborts the list.
//
// Callbacks run here may query the journal but not open actions or move the
// cursor; see refuseReentry.
func (j *Journal) dispatch(actionName string, ops []Operation, dir Direction) {
	j.dispatching++
	defer func() { j.dispatching-- }()

	for _, op := range ops {
		switch o := op.(type) {
		case *CompositeOp:
			if !o.Composite.CanApply() {
				continue
			}
			if dir == Forward {
				o.Composite.Redo()
			} else {
				o.Composite.Undo()
			}

		case *MethodOp:
			obj, ok := j.objects.Resolve(o.target.id())
			if !ok {
				continue
			}
			args := o.ArgSpan()
			if err := j.objects.Call(obj, o.Method, args); err != nil {
				j.diagnose(Diagnostic{
					Kind:      DiagCallFailed,
					Action:    actionName,
					Direction: dir,
					Target:    obj.ID(),
					Method:    o.Method,
					Args:      args,
					Err:       err,
				})
			}
			j.objects.MarkEdited(obj)
			if j.methodNotify != nil {
				j.methodNotify(j.methodUD, obj, o.Method, args)
			}
			j.emit(ir.EventMethod, actionName, ir.IRObject{
				"direction": ir.IRString(dir.String()),
				"target":    ir.IRRef(obj.ID()),
				"method":    ir.IRString(o.Method),
				"args":      cloneArgs(args),
			})

		case *PropertyOp:
			obj, ok := j.objects.Resolve(o.target.id())
			if !ok {
				continue
			}
			j.objects.Set(obj, o.Property, o.Value)
			j.objects.MarkEdited(obj)
			if j.propertyNotify != nil {
				j.propertyNotify(j.propertyUD, obj, o.Property, o.Value)
			}
			j.emit(ir.EventProperty, actionName, ir.IRObject{
				"direction": ir.IRString(dir.String()),
				"target":    ir.IRRef(obj.ID()),
				"property":  ir.IRString(o.Property),
				"value":     ir.Clone(o.Value),
			})

		case *LambdaOp:
			var owner Object
			if o.owner != nil {
				obj, ok := j.objects.Resolve(o.owner.id())
				if !ok {
					continue
				}
				owner = obj
			}
			if j.methodNotify != nil {
				var id ir.ObjectID
				if owner != nil {
					id = owner.ID()
				}
				j.diagnose(Diagnostic{
					Kind:      DiagLambdaUnobserved,
					Action:    actionName,
					Direction: dir,
					Target:    id,
				})
			}
			o.Fn()
			if owner != nil {
				j.objects.MarkEdited(owner)
			}

		case *ReferenceOp:
			// Lifetime only.
		}
	}
}

func (j *Journal) diagnose(d Diagnostic) {
	if j.onDiagnostic != nil {
		j.onDiagnostic(d)
	} else if d.Kind == DiagLambdaUnobserved {
		j.logger.Debug(d.String(), "kind", string(d.Kind))
	} else {
		j.logger.Warn(d.String(), "kind", string(d.Kind), "target", d.Target.String(), "method", d.Method)
	}
	j.emit(ir.EventDiagnostic, d.Action, d.detail())
}
