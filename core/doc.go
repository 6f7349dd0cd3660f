/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package core provides the execution engine for a graph of
// neurons.
//
// A Processor solves neurons.  Solving a neuron walks its outgoing
// links: each link's meaning stands for a cluster of rules (code)
// that runs with the link as context.  A link whose meaning is
// neuron.Actions points at the neuron's own code, which runs after
// the rules of all the other links.
//
// Code is a cluster of Expressions.  A Processor keeps a stack of
// CallFrames, one per cluster being executed, and each frame knows
// how to continue when its code runs out (if, case, loops, foreach,
// queries, and so on).  Control flow (exit, break, continue) unwinds
// frames without using Go's stack, so a processor can be copied at
// any point.
//
// That's what Split does.  A processor can split into several
// processors that continue from the same point with different
// values.  Each clone gets its own copies of the variables according
// to their SplitReaction.  When the last of the siblings finishes,
// the results of all of them are joined (with weights), and the
// split's callback runs in that last processor.
//
// A ThreadManager runs processors on goroutines with a limit on how
// many run at once.  It also supports blocking calls, suspension,
// neuron locks, and stopping everything.
//
// Scripts are supported via Interpreters, which compile ScriptSources
// into Instructions.
package core
